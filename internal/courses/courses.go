package courses

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"schoolboard/internal/school"
	"schoolboard/internal/store"
)

// DefaultSubjects is the catalog every class starts with.
var DefaultSubjects = []string{"Mathematics", "English", "Science", "Urdu", "Islamiyat", "Computer", "History"}

// ErrDuplicate is returned when a class already offers a subject.
var ErrDuplicate = errors.New("subject already offered")

// Catalog is the list of subjects one class offers.
type Catalog struct {
	ClassName string   `json:"className"`
	Subjects  []string `json:"subjects"`
}

// Service keeps one subject catalog per class, keyed by class label.
type Service struct {
	store store.Store
}

// NewService creates a course catalog service.
func NewService(s store.Store) *Service {
	return &Service{store: s}
}

// All returns the catalog of every class, using the defaults for classes
// that were never edited.
func (s *Service) All(ctx context.Context) ([]Catalog, error) {
	out := make([]Catalog, 0, len(school.Classes))
	for _, class := range school.Classes {
		c, err := s.ForClass(ctx, class)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// ForClass returns the catalog of one class.
func (s *Service) ForClass(ctx context.Context, class string) (Catalog, error) {
	if !school.IsClass(class) {
		return Catalog{}, school.NewValidationError(school.FieldError{Field: "className", Error: "className must be one of Class 1 to Class 10"})
	}
	return get(ctx, s.store, class)
}

// AddSubject appends a subject to a class.
func (s *Service) AddSubject(ctx context.Context, class, subject string) (Catalog, error) {
	return s.edit(ctx, class, func(c *Catalog) error {
		subject = strings.TrimSpace(subject)
		if subject == "" {
			return school.Required("subject")
		}
		for _, have := range c.Subjects {
			if strings.EqualFold(have, subject) {
				return ErrDuplicate
			}
		}
		c.Subjects = append(c.Subjects, subject)
		return nil
	})
}

// RenameSubject replaces the subject at index.
func (s *Service) RenameSubject(ctx context.Context, class string, index int, subject string) (Catalog, error) {
	return s.edit(ctx, class, func(c *Catalog) error {
		subject = strings.TrimSpace(subject)
		if subject == "" {
			return school.Required("subject")
		}
		if index < 0 || index >= len(c.Subjects) {
			return errors.Wrapf(store.ErrNotFound, "subject %d of %s", index, class)
		}
		for i, have := range c.Subjects {
			if i != index && strings.EqualFold(have, subject) {
				return ErrDuplicate
			}
		}
		c.Subjects[index] = subject
		return nil
	})
}

// RemoveSubject drops the subject at index.
func (s *Service) RemoveSubject(ctx context.Context, class string, index int) (Catalog, error) {
	return s.edit(ctx, class, func(c *Catalog) error {
		if index < 0 || index >= len(c.Subjects) {
			return errors.Wrapf(store.ErrNotFound, "subject %d of %s", index, class)
		}
		c.Subjects = append(c.Subjects[:index], c.Subjects[index+1:]...)
		return nil
	})
}

func (s *Service) edit(ctx context.Context, class string, fn func(c *Catalog) error) (Catalog, error) {
	if !school.IsClass(class) {
		return Catalog{}, school.NewValidationError(school.FieldError{Field: "className", Error: "className must be one of Class 1 to Class 10"})
	}
	var out Catalog
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		c, err := get(ctx, tx, class)
		if err != nil {
			return err
		}
		if err := fn(&c); err != nil {
			return err
		}
		_, err = tx.Get(ctx, school.Courses, class)
		switch {
		case errors.Is(err, store.ErrNotFound):
			_, err = tx.Create(ctx, school.Courses, class, c)
		case err == nil:
			err = tx.Update(ctx, school.Courses, class, map[string]any{"subjects": c.Subjects})
		}
		if err != nil {
			return errors.Wrap(err, "saving courses")
		}
		out = c
		return nil
	})
	return out, err
}

func get(ctx context.Context, tx store.Tx, class string) (Catalog, error) {
	doc, err := tx.Get(ctx, school.Courses, class)
	if errors.Is(err, store.ErrNotFound) {
		subjects := make([]string, len(DefaultSubjects))
		copy(subjects, DefaultSubjects)
		return Catalog{ClassName: class, Subjects: subjects}, nil
	}
	if err != nil {
		return Catalog{}, errors.Wrap(err, "loading courses")
	}
	var c Catalog
	if err := doc.Decode(&c); err != nil {
		return Catalog{}, err
	}
	c.ClassName = class
	return c, nil
}
