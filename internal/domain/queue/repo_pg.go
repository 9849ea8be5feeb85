package queue

import (
	"context"
	"errors"
	"fmt"
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

// begin opens a transaction on the tenant-scoped connection when one is
// bound to the context, so search_path carries into the transaction.
func (r *repoPG) begin(ctx context.Context) (pgx.Tx, error) {
	if c := db.ConnFromContext(ctx); c != nil {
		return c.Begin(ctx)
	}
	return r.pool.Begin(ctx)
}

const cols = `id, appointment_id, patient_id, doctor_id, queue_number, admission_day,
	urgency, status, priority_score, reason, admitted_at, called_at, serving_started_at,
	completed_at, closed_at, version_id, created_at, updated_at`

// effExpr is the SQL effective score for the given table alias. The urgency
// rates must stay in sync with agingPerHour in scorer.go.
func effExpr(alias string) string {
	return fmt.Sprintf(`%[1]s.priority_score + (CASE %[1]s.urgency
		WHEN 'low' THEN 12
		WHEN 'normal' THEN 10
		WHEN 'high' THEN 2
		ELSE 0 END) * FLOOR(EXTRACT(EPOCH FROM (NOW() - %[1]s.admitted_at)) / 3600)::int`, alias)
}

// priorityOrder sorts highest effective score first, then earliest admission,
// then lowest queue number so ordering is total.
func priorityOrder(alias string) string {
	return fmt.Sprintf(`%s DESC, %[2]s.admitted_at ASC, %[2]s.queue_number ASC`, effExpr(alias), alias)
}

func (r *repoPG) scan(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.AppointmentID, &e.PatientID, &e.DoctorID, &e.QueueNumber,
		&e.AdmissionDay, &e.Urgency, &e.Status, &e.PriorityScore, &e.Reason, &e.AdmittedAt,
		&e.CalledAt, &e.ServingStartedAt, &e.CompletedAt, &e.ClosedAt,
		&e.VersionID, &e.CreatedAt, &e.UpdatedAt)
	return &e, err
}

func (r *repoPG) Create(ctx context.Context, e *Entry) error {
	tx, err := r.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Serializes number allocation per admission day. The lock is released
	// at commit, so concurrent admissions for the same day queue up here
	// and each sees the previous MAX.
	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext('queue_entry:' || $1::date::text))`,
		e.AdmissionDay); err != nil {
		return err
	}

	e.ID = uuid.New()
	err = tx.QueryRow(ctx, `
		INSERT INTO queue_entry (id, appointment_id, patient_id, doctor_id, queue_number,
			admission_day, urgency, status, priority_score, admitted_at)
		SELECT $1, $2, $3, $4, COALESCE(MAX(queue_number), 0) + 1, $5::date, $6, $7, $8, $9
		FROM queue_entry WHERE admission_day = $5::date
		RETURNING queue_number, admission_day, version_id, created_at, updated_at`,
		e.ID, e.AppointmentID, e.PatientID, e.DoctorID, e.AdmissionDay,
		e.Urgency, e.Status, e.PriorityScore, e.AdmittedAt).
		Scan(&e.QueueNumber, &e.AdmissionDay, &e.VersionID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyInQueue
		}
		return err
	}

	return tx.Commit(ctx)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e, err := r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+cols+` FROM queue_entry WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func (r *repoPG) GetActiveByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Entry, error) {
	e, err := r.scan(r.conn(ctx).QueryRow(ctx, `
		SELECT `+cols+` FROM queue_entry
		WHERE appointment_id = $1 AND status IN ('waiting','called','serving')`,
		appointmentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func (r *repoPG) GetActiveByPatient(ctx context.Context, patientID uuid.UUID) (*Entry, error) {
	e, err := r.scan(r.conn(ctx).QueryRow(ctx, `
		SELECT `+cols+` FROM queue_entry
		WHERE patient_id = $1 AND status IN ('waiting','called','serving')
		ORDER BY admitted_at ASC
		LIMIT 1`,
		patientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func (r *repoPG) Update(ctx context.Context, e *Entry) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE queue_entry SET doctor_id=$2, status=$3, priority_score=$4, reason=$5,
			called_at=$6, serving_started_at=$7, completed_at=$8, closed_at=$9,
			version_id=version_id+1, updated_at=NOW()
		WHERE id = $1 AND version_id = $10`,
		e.ID, e.DoctorID, e.Status, e.PriorityScore, e.Reason, e.CalledAt,
		e.ServingStartedAt, e.CompletedAt, e.ClosedAt, e.VersionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.conn(ctx).QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM queue_entry WHERE id = $1)`, e.ID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return ErrVersionConflict
		}
		return ErrNotFound
	}
	e.VersionID++
	return nil
}

func (r *repoPG) ClaimNext(ctx context.Context, day time.Time, doctorID *uuid.UUID) (*Entry, error) {
	tx, err := r.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// SKIP LOCKED makes concurrent claims pick distinct rows instead of
	// blocking on the same winner.
	e, err := r.scan(tx.QueryRow(ctx, `
		SELECT `+cols+` FROM queue_entry q
		WHERE q.admission_day = $1::date AND q.status = 'waiting'
			AND ($2::uuid IS NULL OR q.doctor_id = $2)
		ORDER BY `+priorityOrder("q")+`
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
		day, doctorID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx, `
		UPDATE queue_entry SET status='called', called_at=NOW(),
			version_id=version_id+1, updated_at=NOW()
		WHERE id = $1
		RETURNING status, called_at, version_id, updated_at`, e.ID).
		Scan(&e.Status, &e.CalledAt, &e.VersionID, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *repoPG) ListActive(ctx context.Context, day time.Time, doctorID *uuid.UUID) ([]*Entry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+cols+` FROM queue_entry q
		WHERE q.admission_day = $1::date AND q.status IN ('waiting','called','serving')
			AND ($2::uuid IS NULL OR q.doctor_id = $2)
		ORDER BY `+priorityOrder("q"),
		day, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows, r.scan)
}

func (r *repoPG) Rank(ctx context.Context, e *Entry) (int, error) {
	var rank int
	err := r.conn(ctx).QueryRow(ctx, `
		WITH target AS (
			SELECT t.admission_day, t.doctor_id, t.admitted_at, t.queue_number,
				`+effExpr("t")+` AS eff
			FROM queue_entry t WHERE t.id = $1
		)
		SELECT COUNT(*) + 1 FROM queue_entry q, target
		WHERE q.admission_day = target.admission_day
			AND q.status = 'waiting'
			AND (target.doctor_id IS NULL OR q.doctor_id = target.doctor_id)
			AND q.id <> $1
			AND (`+effExpr("q")+` > target.eff
				OR (`+effExpr("q")+` = target.eff
					AND (q.admitted_at < target.admitted_at
						OR (q.admitted_at = target.admitted_at
							AND q.queue_number < target.queue_number))))`,
		e.ID).Scan(&rank)
	return rank, err
}

func (r *repoPG) CountActiveByDoctor(ctx context.Context, day time.Time) (map[uuid.UUID]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT doctor_id, COUNT(*) FROM queue_entry
		WHERE admission_day = $1::date AND status IN ('waiting','called','serving')
			AND doctor_id IS NOT NULL
		GROUP BY doctor_id`,
		day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	load := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		load[id] = count
	}
	return load, rows.Err()
}

func (r *repoPG) List(ctx context.Context, day time.Time, status Status, limit, offset int) ([]*Entry, int, error) {
	where := `admission_day = $1::date`
	args := []interface{}{day}
	if status != "" {
		where += ` AND status = $2`
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM queue_entry WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM queue_entry WHERE %s ORDER BY queue_number LIMIT $%d OFFSET $%d`,
		cols, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items, err := collect(rows, r.scan)
	return items, total, err
}

func (r *repoPG) Stats(ctx context.Context, day time.Time, doctorID *uuid.UUID) (*Stats, error) {
	stats := &Stats{Day: day, ByStatus: make(map[Status]int)}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT status, COUNT(*) FROM queue_entry
		WHERE admission_day = $1::date AND ($2::uuid IS NULL OR doctor_id = $2)
		GROUP BY status`,
		day, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Wait ends at the first call; entries never called wait until close or,
	// while still open, until now.
	err = r.conn(ctx).QueryRow(ctx, `
		SELECT
			COALESCE(AVG(EXTRACT(EPOCH FROM (COALESCE(called_at, closed_at, NOW()) - admitted_at)) / 60), 0),
			COALESCE(MAX(EXTRACT(EPOCH FROM (COALESCE(called_at, closed_at, NOW()) - admitted_at)) / 60), 0)
		FROM queue_entry
		WHERE admission_day = $1::date AND ($2::uuid IS NULL OR doctor_id = $2)`,
		day, doctorID).Scan(&stats.AvgWaitMinutes, &stats.LongestWaitMin)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func collect(rows pgx.Rows, scan func(pgx.Row) (*Entry, error)) ([]*Entry, error) {
	var items []*Entry
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}
