package schedule

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"schoolboard/internal/feed"
	"schoolboard/internal/school"
	"schoolboard/internal/store"
)

// Manager loads and saves class schedules keyed by class label and keeps a
// cached list of all schedules for the teacher view.
type Manager struct {
	store store.Store
	now   func() time.Time

	mu     sync.RWMutex
	cache  []ClassSchedule
	loaded bool
}

// NewManager creates a schedule manager backed by s.
func NewManager(s store.Store) *Manager {
	return &Manager{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// LoadForClass returns the stored grid of class verbatim, or seven empty
// slots with Exists=false when the class has no schedule yet.
func (m *Manager) LoadForClass(ctx context.Context, class string) (Grid, error) {
	class = strings.TrimSpace(class)
	if class == "" {
		return Grid{}, school.Required("className")
	}
	doc, err := m.store.Get(ctx, school.ClassSchedules, class)
	if errors.Is(err, store.ErrNotFound) {
		return Grid{ClassName: class, Periods: DefaultSlots()}, nil
	}
	if err != nil {
		return Grid{}, errors.Wrap(err, "loading schedule")
	}
	var cs ClassSchedule
	if err := doc.Decode(&cs); err != nil {
		return Grid{}, err
	}
	return Grid{ClassName: class, Periods: cs.Periods, Exists: true}, nil
}

// SaveForClass creates or updates the schedule of class in one atomic
// upsert, then refreshes the cached schedule list.
func (m *Manager) SaveForClass(ctx context.Context, class string, slots []Slot) (Grid, error) {
	class = strings.TrimSpace(class)
	if class == "" {
		return Grid{}, school.Required("className")
	}
	if len(slots) != Periods {
		return Grid{}, school.NewValidationError(school.FieldError{
			Field: "periods", Error: "periods must hold exactly 7 slots",
		})
	}
	periods := make([]Slot, Periods)
	for i, s := range slots {
		periods[i] = Slot{Period: i + 1, Subject: strings.TrimSpace(s.Subject), TeacherID: strings.TrimSpace(s.TeacherID)}
	}

	err := m.upsert(ctx, class, periods)
	if errors.Is(err, store.ErrExists) {
		// a concurrent first save won the insert; the retry takes the update path
		err = m.upsert(ctx, class, periods)
	}
	if err != nil {
		return Grid{}, err
	}

	if err := m.Refresh(ctx); err != nil {
		log.Printf("schedule: refreshing cache after saving %s failed: %v", class, err)
	} else if conflicts := m.conflictsFor(class); len(conflicts) > 0 {
		for _, c := range conflicts {
			log.Printf("schedule: teacher %s is booked in %s during period %d", c.TeacherID, strings.Join(c.Classes, ", "), c.Period)
		}
	}
	return Grid{ClassName: class, Periods: periods, Exists: true}, nil
}

func (m *Manager) upsert(ctx context.Context, class string, periods []Slot) error {
	return m.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		now := m.now()
		_, err := tx.Get(ctx, school.ClassSchedules, class)
		switch {
		case errors.Is(err, store.ErrNotFound):
			doc := ClassSchedule{ClassName: class, Periods: periods, CreatedAt: now}
			if _, err := tx.Create(ctx, school.ClassSchedules, class, doc); err != nil {
				return errors.Wrap(err, "creating schedule")
			}
			return nil
		case err != nil:
			return errors.Wrap(err, "loading schedule")
		}
		if err := tx.Update(ctx, school.ClassSchedules, class, map[string]any{"periods": periods, "updatedAt": now}); err != nil {
			return errors.Wrap(err, "updating schedule")
		}
		return nil
	})
}

// Refresh reloads the cached list of all class schedules.
func (m *Manager) Refresh(ctx context.Context) error {
	docs, err := m.store.List(ctx, school.ClassSchedules)
	if err != nil {
		return errors.Wrap(err, "listing schedules")
	}
	all := make([]ClassSchedule, 0, len(docs))
	for _, d := range docs {
		var cs ClassSchedule
		if err := d.Decode(&cs); err != nil {
			return err
		}
		if cs.ClassName == "" {
			cs.ClassName = d.ID
		}
		all = append(all, cs)
	}
	m.mu.Lock()
	m.cache = all
	m.loaded = true
	m.mu.Unlock()
	return nil
}

// Schedules returns the cached schedules, loading them on first use.
func (m *Manager) Schedules(ctx context.Context) ([]ClassSchedule, error) {
	m.mu.RLock()
	loaded := m.loaded
	m.mu.RUnlock()
	if !loaded {
		if err := m.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ClassSchedule, len(m.cache))
	copy(out, m.cache)
	return out, nil
}

// SlotsForTeacher derives the daily view of one teacher from the cached schedules.
func (m *Manager) SlotsForTeacher(ctx context.Context, teacherID string) ([]TeacherSlot, error) {
	all, err := m.Schedules(ctx)
	if err != nil {
		return nil, err
	}
	return SlotsForTeacher(all, teacherID), nil
}

// Conflicts lists teachers booked in more than one class for the same period.
func (m *Manager) Conflicts(ctx context.Context) ([]Conflict, error) {
	all, err := m.Schedules(ctx)
	if err != nil {
		return nil, err
	}
	return FindConflicts(all), nil
}

func (m *Manager) conflictsFor(class string) []Conflict {
	m.mu.RLock()
	all := m.cache
	m.mu.RUnlock()
	var out []Conflict
	for _, c := range FindConflicts(all) {
		for _, cl := range c.Classes {
			if cl == class {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// Follow refreshes the cache whenever another writer changes a schedule.
// It returns when ctx is done.
func (m *Manager) Follow(ctx context.Context, broker feed.Broker) error {
	changes, err := broker.Subscribe(ctx, school.ClassSchedules)
	if err != nil {
		return errors.Wrap(err, "subscribing to schedules")
	}
	for range changes {
		if err := m.Refresh(ctx); err != nil && ctx.Err() == nil {
			log.Printf("schedule: refresh after change failed: %v", err)
		}
	}
	return nil
}
