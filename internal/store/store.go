package store

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"cuidarmed/m/domain"
)

const medicationColumns = `id, name, dose, current_stock, min_stock, schedule,
    low_stock_notified, expiry_date, expiry_notified, created_at, updated_at`

// Store owns all SQL against the medications and movements tables. It is the
// single long-lived handle shared by the HTTP handlers and the worker.
type Store struct {
	db *sqlx.DB
}

// New constructs a Store.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// List returns every medication ordered by name.
func (s *Store) List(ctx context.Context) ([]domain.Medication, error) {
	meds := []domain.Medication{}
	err := s.db.SelectContext(ctx, &meds,
		`SELECT `+medicationColumns+` FROM medications ORDER BY name`)
	return meds, err
}

// Get returns one medication by id, or sql.ErrNoRows.
func (s *Store) Get(ctx context.Context, id int64) (domain.Medication, error) {
	var med domain.Medication
	err := s.db.GetContext(ctx, &med,
		`SELECT `+medicationColumns+` FROM medications WHERE id = ?`, id)
	return med, err
}

// Create inserts a new medication and returns its id.
func (s *Store) Create(ctx context.Context, med domain.Medication) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO medications (name, dose, current_stock, min_stock, schedule, low_stock_notified, expiry_date, expiry_notified)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		med.Name, med.Dose, med.CurrentStock, med.MinStock, med.Schedule,
		med.LowStockNotified, med.ExpiryDate, med.ExpiryNotified)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Update rewrites a medication's mutable fields.
func (s *Store) Update(ctx context.Context, med domain.Medication) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE medications
         SET name = ?, dose = ?, current_stock = ?, min_stock = ?, schedule = ?,
             low_stock_notified = ?, expiry_date = ?, expiry_notified = ?,
             updated_at = CURRENT_TIMESTAMP
         WHERE id = ?`,
		med.Name, med.Dose, med.CurrentStock, med.MinStock, med.Schedule,
		med.LowStockNotified, med.ExpiryDate, med.ExpiryNotified, med.ID)
	if err != nil {
		return err
	}
	return noRowsAsErr(res)
}

// Delete removes a medication. Movements referencing it are kept: the log is
// an audit trail keyed by name snapshot, not a live reference.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM medications WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return noRowsAsErr(res)
}

// DueAt returns medications with positive stock whose schedule contains the
// given "HH:MM" slot. Matching happens in process: a LIKE against the JSON
// column would match "9:00" inside "19:00".
func (s *Store) DueAt(ctx context.Context, slot string) ([]domain.Medication, error) {
	candidates := []domain.Medication{}
	err := s.db.SelectContext(ctx, &candidates,
		`SELECT `+medicationColumns+` FROM medications WHERE current_stock > 0`)
	if err != nil {
		return nil, err
	}
	due := candidates[:0]
	for _, med := range candidates {
		if med.Schedule.Contains(slot) {
			due = append(due, med)
		}
	}
	return due, nil
}

// DecrementStock takes one unit off a medication's stock. The guard keeps the
// stored value from ever going negative; the bool reports whether a row was
// actually decremented.
func (s *Store) DecrementStock(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE medications
         SET current_stock = current_stock - 1, updated_at = CURRENT_TIMESTAMP
         WHERE id = ? AND current_stock > 0`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// LowStockUnnotified returns medications at or below their reorder threshold
// that have not yet produced a low-stock notice for the current episode.
func (s *Store) LowStockUnnotified(ctx context.Context) ([]domain.Medication, error) {
	meds := []domain.Medication{}
	err := s.db.SelectContext(ctx, &meds,
		`SELECT `+medicationColumns+` FROM medications
         WHERE current_stock <= min_stock AND low_stock_notified = 0`)
	return meds, err
}

// ExpiringUnnotified returns medications whose expiry date falls on or before
// the boundary ("YYYY-MM-DD") and whose expiry notice has not been sent.
func (s *Store) ExpiringUnnotified(ctx context.Context, boundary string) ([]domain.Medication, error) {
	meds := []domain.Medication{}
	err := s.db.SelectContext(ctx, &meds,
		`SELECT `+medicationColumns+` FROM medications
         WHERE expiry_date IS NOT NULL AND expiry_notified = 0 AND expiry_date <= ?`,
		boundary)
	return meds, err
}

// SetLowStockNotified persists the one-shot low-stock flag.
func (s *Store) SetLowStockNotified(ctx context.Context, id int64, notified bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE medications SET low_stock_notified = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		notified, id)
	return err
}

// SetExpiryNotified persists the one-shot expiry flag.
func (s *Store) SetExpiryNotified(ctx context.Context, id int64, notified bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE medications SET expiry_notified = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		notified, id)
	return err
}

// AddMovement appends one entry to the movement log. Entries are never
// updated or deleted afterwards.
func (s *Store) AddMovement(ctx context.Context, medicationName string, delta int64, kind string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO movements (medication_name, delta, kind) VALUES (?, ?, ?)`,
		medicationName, delta, kind)
	return err
}

// RecentMovements returns the newest entries first, capped at limit.
func (s *Store) RecentMovements(ctx context.Context, limit int) ([]domain.Movement, error) {
	movements := []domain.Movement{}
	err := s.db.SelectContext(ctx, &movements,
		`SELECT id, created_at, medication_name, delta, kind FROM movements
         ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	return movements, err
}

func noRowsAsErr(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
