package roster

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/pkg/errors"

	"schoolboard/internal/blob"
	"schoolboard/internal/credentials"
	"schoolboard/internal/feed"
	"schoolboard/internal/metrics"
	"schoolboard/internal/school"
	"schoolboard/internal/store"
)

// ErrNoPhotoStore is returned when a photo is supplied but no blob store is configured.
var ErrNoPhotoStore = errors.New("photo storage not configured")

// Photo is an uploaded image file.
type Photo struct {
	Filename string
	Data     []byte
}

// Service owns student records and their numbering.
type Service struct {
	store  store.Store
	blobs  blob.Store
	broker feed.Broker
	now    func() time.Time
}

// NewService creates a roster service. blobs and broker may be nil when
// photo uploads or live feeds are not needed.
func NewService(s store.Store, blobs blob.Store, broker feed.Broker) *Service {
	return &Service{store: s, blobs: blobs, broker: broker, now: time.Now}
}

// Create stores a new student with the next grNo, the next rollNo in its
// class and a derived login secret.
func (s *Service) Create(ctx context.Context, in school.Student, photo *Photo) (school.Student, error) {
	in = normalize(in)
	if err := school.Validate(in); err != nil {
		return school.Student{}, err
	}
	hash, err := credentials.Hash(credentials.DeriveSecret(in.LoginName()))
	if err != nil {
		return school.Student{}, err
	}
	if photo != nil {
		url, err := s.uploadPhoto(ctx, photo)
		if err != nil {
			return school.Student{}, err
		}
		in.Photo = url
	}

	rec := in
	rec.PasswordHash = hash
	rec.CreatedAt = s.now().UTC()
	err = s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		all, err := load(ctx, tx, "")
		if err != nil {
			return err
		}
		rec.GRNo, rec.RollNo = nextNumbers(all, rec.Class)
		rec.ID = ""
		id, err := tx.Create(ctx, school.Students, "", rec)
		if err != nil {
			return errors.Wrap(err, "creating student")
		}
		rec.ID = id
		return nil
	})
	if err != nil {
		return school.Student{}, err
	}
	return rec.Public(), nil
}

// NextGRNo returns the enrollment number the next created student receives.
func (s *Service) NextGRNo(ctx context.Context) (int, error) {
	all, err := load(ctx, s.store, "")
	if err != nil {
		return 0, err
	}
	gr, _ := nextNumbers(all, "")
	return gr, nil
}

// Get returns one student.
func (s *Service) Get(ctx context.Context, id string) (school.Student, error) {
	doc, err := s.store.Get(ctx, school.Students, id)
	if err != nil {
		return school.Student{}, err
	}
	st, err := decode(doc)
	if err != nil {
		return school.Student{}, err
	}
	return st.Public(), nil
}

// List returns the students of class by rollNo, or all students by grNo
// when class is empty.
func (s *Service) List(ctx context.Context, class string) ([]school.Student, error) {
	out, err := load(ctx, s.store, class)
	if err != nil {
		return nil, err
	}
	if class != "" {
		SortByRollNo(out)
	} else {
		SortByGRNo(out)
	}
	for i := range out {
		out[i] = out[i].Public()
	}
	return out, nil
}

// Update overwrites the mutable fields of a student. Numbering is kept,
// except that moving to another class appends the student to the new class
// and closes the gap left in the old one.
func (s *Service) Update(ctx context.Context, id string, in school.Student, photo *Photo) (school.Student, error) {
	in = normalize(in)
	if err := school.Validate(in); err != nil {
		return school.Student{}, err
	}
	if photo != nil {
		url, err := s.uploadPhoto(ctx, photo)
		if err != nil {
			return school.Student{}, err
		}
		in.Photo = url
	}

	var out school.Student
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		doc, err := tx.Get(ctx, school.Students, id)
		if err != nil {
			return err
		}
		cur, err := decode(doc)
		if err != nil {
			return err
		}
		fields := mutableFields(in)
		if in.Photo == "" {
			delete(fields, "photo")
		}
		if err := tx.Update(ctx, school.Students, id, fields); err != nil {
			return errors.Wrap(err, "updating student")
		}

		if cur.Class != in.Class {
			all, err := load(ctx, tx, "")
			if err != nil {
				return err
			}
			others := make([]school.Student, 0, len(all))
			for _, st := range all {
				if st.ID != id {
					others = append(others, st)
				}
			}
			_, rollNo := nextNumbers(others, in.Class)
			if err := tx.Update(ctx, school.Students, id, map[string]any{"rollNo": rollNo}); err != nil {
				return errors.Wrap(err, "moving student")
			}
			if _, err := renumber(ctx, tx); err != nil {
				return err
			}
		}

		doc, err = tx.Get(ctx, school.Students, id)
		if err != nil {
			return err
		}
		out, err = decode(doc)
		return err
	})
	if err != nil {
		return school.Student{}, err
	}
	return out.Public(), nil
}

// Delete removes a student and renumbers the survivors in the same transaction.
func (s *Service) Delete(ctx context.Context, id string) error {
	var changed int
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Delete(ctx, school.Students, id); err != nil {
			return err
		}
		n, err := renumber(ctx, tx)
		changed = n
		return err
	})
	if err != nil {
		return err
	}
	metrics.RenumberPasses.Inc()
	metrics.RenumberedStudents.Add(float64(changed))
	return nil
}

// Check returns the students whose numbers are out of sequence, carrying
// the numbers a repair would assign.
func (s *Service) Check(ctx context.Context) ([]school.Student, error) {
	all, err := load(ctx, s.store, "")
	if err != nil {
		return nil, err
	}
	return Renumber(all), nil
}

// Repair renumbers every student and returns how many records changed.
func (s *Service) Repair(ctx context.Context) (int, error) {
	var changed int
	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		n, err := renumber(ctx, tx)
		changed = n
		return err
	})
	if err == nil && changed > 0 {
		log.Printf("roster: repaired numbering of %d students", changed)
		metrics.RenumberedStudents.Add(float64(changed))
	}
	return changed, err
}

// Watch streams the student list of class (all students when empty): once
// immediately and again after every change to the collection.
func (s *Service) Watch(ctx context.Context, class string) (<-chan []school.Student, error) {
	if s.broker == nil {
		return nil, errors.New("live feed not configured")
	}
	changes, err := s.broker.Subscribe(ctx, school.Students)
	if err != nil {
		return nil, errors.Wrap(err, "subscribing to students")
	}
	out := make(chan []school.Student, 1)
	go func() {
		defer close(out)
		for {
			list, err := s.List(ctx, class)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("roster: refreshing live list failed: %v", err)
			} else {
				select {
				case out <- list:
				case <-ctx.Done():
					return
				}
			}
			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *Service) uploadPhoto(ctx context.Context, p *Photo) (string, error) {
	if s.blobs == nil {
		return "", ErrNoPhotoStore
	}
	url, err := s.blobs.Put(ctx, blob.StudentPhotoKey(s.now(), p.Filename), p.Data)
	if err != nil {
		return "", errors.Wrap(err, "uploading photo")
	}
	return url, nil
}

// renumber rewrites the numbering of every student whose numbers changed.
func renumber(ctx context.Context, tx store.Tx) (int, error) {
	all, err := load(ctx, tx, "")
	if err != nil {
		return 0, err
	}
	changed := Renumber(all)
	for _, st := range changed {
		if err := tx.Update(ctx, school.Students, st.ID, map[string]any{"grNo": st.GRNo, "rollNo": st.RollNo}); err != nil {
			return 0, errors.Wrapf(err, "renumbering student %s", st.ID)
		}
	}
	return len(changed), nil
}

func load(ctx context.Context, tx store.Tx, class string) ([]school.Student, error) {
	var filters []store.Filter
	if class != "" {
		filters = append(filters, store.Where("class", class))
	}
	docs, err := tx.List(ctx, school.Students, filters...)
	if err != nil {
		return nil, errors.Wrap(err, "listing students")
	}
	out := make([]school.Student, 0, len(docs))
	for _, d := range docs {
		st, err := decode(d)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func decode(d store.Doc) (school.Student, error) {
	var st school.Student
	if err := d.Decode(&st); err != nil {
		return school.Student{}, err
	}
	st.ID = d.ID
	return st, nil
}

func normalize(in school.Student) school.Student {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)
	in.Class = strings.TrimSpace(in.Class)
	return in
}

func mutableFields(in school.Student) map[string]any {
	return map[string]any{
		"fullName":         in.FullName,
		"phone":            in.Phone,
		"email":            in.Email,
		"address":          in.Address,
		"class":            in.Class,
		"fatherName":       in.FatherName,
		"fatherPhone":      in.FatherPhone,
		"fatherOccupation": in.FatherOccupation,
		"motherName":       in.MotherName,
		"motherPhone":      in.MotherPhone,
		"motherOccupation": in.MotherOccupation,
		"photo":            in.Photo,
	}
}
