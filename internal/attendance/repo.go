package attendance

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"schoolboard/internal/school"
	"schoolboard/internal/store"
)

// Record is the attendance status of one person on one day.
type Record struct {
	ID       string      `json:"id,omitempty"`
	Role     school.Role `json:"role"`
	UserID   string      `json:"userId"`
	Date     string      `json:"date"`
	Month    string      `json:"month"`
	Status   Status      `json:"status"`
	MarkedBy string      `json:"markedBy,omitempty"`
	MarkedAt time.Time   `json:"markedAt"`
}

// Repository persists one attendance document per role, person and day.
type Repository struct {
	store store.Store
}

// NewRepository creates a repo.
func NewRepository(s store.Store) *Repository {
	return &Repository{store: s}
}

func recordID(role school.Role, userID, date string) string {
	return strings.Join([]string{string(role), userID, date}, "|")
}

// Upsert writes rec, replacing the status already stored for that day.
func (r *Repository) Upsert(ctx context.Context, rec Record) (Record, error) {
	id := recordID(rec.Role, rec.UserID, rec.Date)
	err := r.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Get(ctx, school.Attendance, id)
		switch {
		case errors.Is(err, store.ErrNotFound):
			_, err = tx.Create(ctx, school.Attendance, id, rec)
		case err == nil:
			err = tx.Update(ctx, school.Attendance, id, map[string]any{
				"status":   rec.Status,
				"markedBy": rec.MarkedBy,
				"markedAt": rec.MarkedAt,
			})
		}
		return errors.Wrap(err, "saving attendance")
	})
	if err != nil {
		return Record{}, err
	}
	rec.ID = id
	return rec, nil
}

// Month returns the records of one person for a "YYYY-MM" month.
func (r *Repository) Month(ctx context.Context, role school.Role, userID, month string) ([]Record, error) {
	docs, err := r.store.List(ctx, school.Attendance, store.Where("userId", userID), store.Where("month", month))
	if err != nil {
		return nil, errors.Wrap(err, "listing attendance")
	}
	out := make([]Record, 0, len(docs))
	for _, d := range docs {
		var rec Record
		if err := d.Decode(&rec); err != nil {
			return nil, err
		}
		if rec.Role != role {
			continue
		}
		rec.ID = d.ID
		out = append(out, rec)
	}
	return out, nil
}

// Delete removes the record of one day.
func (r *Repository) Delete(ctx context.Context, role school.Role, userID, date string) error {
	return errors.Wrap(r.store.Delete(ctx, school.Attendance, recordID(role, userID, date)), "clearing attendance")
}
