package notification

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// PhoneLookup resolves a patient ID to their mobile number. Returning an
// empty string means the patient has no number on file.
type PhoneLookup func(ctx context.Context, patientID uuid.UUID) (string, error)

// QueueNotifier sends queue lifecycle SMS notifications to patients. It
// satisfies the queue service's Notifier interface.
type QueueNotifier struct {
	mgr    *NotificationManager
	lookup PhoneLookup
}

func NewQueueNotifier(mgr *NotificationManager, lookup PhoneLookup) *QueueNotifier {
	return &QueueNotifier{mgr: mgr, lookup: lookup}
}

func (n *QueueNotifier) QueueAdmitted(ctx context.Context, patientID uuid.UUID, queueNumber, estimatedMinutes int) error {
	phone, err := n.lookup(ctx, patientID)
	if err != nil {
		return fmt.Errorf("lookup patient phone: %w", err)
	}
	if phone == "" {
		return nil
	}
	_, err = n.mgr.SendFromTemplate(ctx, "queue-admitted", map[string]string{
		"queue_number":   strconv.Itoa(queueNumber),
		"estimated_wait": strconv.Itoa(estimatedMinutes),
	}, phone)
	return err
}

func (n *QueueNotifier) QueueCalled(ctx context.Context, patientID uuid.UUID, queueNumber int) error {
	phone, err := n.lookup(ctx, patientID)
	if err != nil {
		return fmt.Errorf("lookup patient phone: %w", err)
	}
	if phone == "" {
		return nil
	}
	_, err = n.mgr.SendFromTemplate(ctx, "queue-called", map[string]string{
		"queue_number": strconv.Itoa(queueNumber),
	}, phone)
	return err
}
