package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicflow/clinicflow/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const cols = `id, patient_id, doctor_id, department, urgency, appointment_date,
	status, note, version_id, created_at, updated_at`

func (r *repoPG) scan(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.Department, &a.Urgency,
		&a.AppointmentDate, &a.Status, &a.Note, &a.VersionID, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	if a.Status == "" {
		a.Status = StatusBooked
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointment (id, patient_id, doctor_id, department, urgency, appointment_date, status, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		a.ID, a.PatientID, a.DoctorID, a.Department, a.Urgency, a.AppointmentDate, a.Status, a.Note)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM appointment WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment SET doctor_id=$2, department=$3, urgency=$4, appointment_date=$5,
			status=$6, note=$7, version_id=version_id+1, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.DoctorID, a.Department, a.Urgency, a.AppointmentDate, a.Status, a.Note)
	return err
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment SET status=$2, version_id=version_id+1, updated_at=NOW() WHERE id = $1`,
		id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	return err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Appointment, int, error) {
	return r.list(ctx, `SELECT COUNT(*) FROM appointment`, nil,
		`SELECT `+cols+` FROM appointment ORDER BY appointment_date DESC LIMIT $1 OFFSET $2`,
		[]interface{}{limit, offset})
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return r.list(ctx, `SELECT COUNT(*) FROM appointment WHERE patient_id = $1`, []interface{}{patientID},
		`SELECT `+cols+` FROM appointment WHERE patient_id = $1 ORDER BY appointment_date DESC LIMIT $2 OFFSET $3`,
		[]interface{}{patientID, limit, offset})
}

func (r *repoPG) ListByDate(ctx context.Context, day time.Time, limit, offset int) ([]*Appointment, int, error) {
	return r.list(ctx, `SELECT COUNT(*) FROM appointment WHERE appointment_date::date = $1::date`, []interface{}{day},
		`SELECT `+cols+` FROM appointment WHERE appointment_date::date = $1::date ORDER BY appointment_date LIMIT $2 OFFSET $3`,
		[]interface{}{day, limit, offset})
}

func (r *repoPG) list(ctx context.Context, countSQL string, countArgs []interface{}, listSQL string, listArgs []interface{}) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, nil
}
