package staff

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"schoolboard/internal/blob"
	"schoolboard/internal/credentials"
	"schoolboard/internal/school"
	"schoolboard/internal/store"
)

// ErrNoPhotoStore is returned when a picture is supplied but no blob store is configured.
var ErrNoPhotoStore = errors.New("photo storage not configured")

// Photo is an uploaded picture.
type Photo struct {
	Filename string
	Data     []byte
}

// Service manages teacher and admin records.
type Service struct {
	store store.Store
	blobs blob.Store
	now   func() time.Time
}

// NewService creates a staff service; blobs may be nil.
func NewService(s store.Store, blobs blob.Store) *Service {
	return &Service{store: s, blobs: blobs, now: time.Now}
}

// CreateTeacher stores a teacher with a derived login secret.
func (s *Service) CreateTeacher(ctx context.Context, t school.Teacher, photo *Photo) (school.Teacher, error) {
	t = normalizeTeacher(t)
	if err := school.Validate(t); err != nil {
		return school.Teacher{}, err
	}
	if err := s.attach(ctx, "teachers", photo, &t.Photo); err != nil {
		return school.Teacher{}, err
	}
	hash, err := credentials.Hash(credentials.DeriveSecret(t.LoginName()))
	if err != nil {
		return school.Teacher{}, err
	}
	t.ID = ""
	t.PasswordHash = hash
	t.CreatedAt = s.now().UTC()
	id, err := s.store.Create(ctx, school.Teachers, "", t)
	if err != nil {
		return school.Teacher{}, errors.Wrap(err, "creating teacher")
	}
	t.ID = id
	return t.Public(), nil
}

// UpdateTeacher overwrites the editable fields of a teacher.
func (s *Service) UpdateTeacher(ctx context.Context, id string, t school.Teacher, photo *Photo) (school.Teacher, error) {
	t = normalizeTeacher(t)
	if err := school.Validate(t); err != nil {
		return school.Teacher{}, err
	}
	if err := s.attach(ctx, "teachers", photo, &t.Photo); err != nil {
		return school.Teacher{}, err
	}
	fields := map[string]any{
		"firstName": t.FirstName,
		"lastName":  t.LastName,
		"email":     t.Email,
		"phone":     t.Phone,
		"address":   t.Address,
		"education": t.Education,
		"dob":       t.DOB,
		"salary":    t.Salary,
		"dutyTime":  t.DutyTime,
	}
	if t.Photo != "" {
		fields["picture"] = t.Photo
	}
	if err := s.store.Update(ctx, school.Teachers, id, fields); err != nil {
		return school.Teacher{}, err
	}
	return s.Teacher(ctx, id)
}

// Teacher returns one teacher.
func (s *Service) Teacher(ctx context.Context, id string) (school.Teacher, error) {
	doc, err := s.store.Get(ctx, school.Teachers, id)
	if err != nil {
		return school.Teacher{}, err
	}
	var t school.Teacher
	if err := doc.Decode(&t); err != nil {
		return school.Teacher{}, err
	}
	t.ID = doc.ID
	return t.Public(), nil
}

// Teachers lists all teachers in creation order.
func (s *Service) Teachers(ctx context.Context) ([]school.Teacher, error) {
	docs, err := s.store.List(ctx, school.Teachers)
	if err != nil {
		return nil, errors.Wrap(err, "listing teachers")
	}
	out := make([]school.Teacher, 0, len(docs))
	for _, d := range docs {
		var t school.Teacher
		if err := d.Decode(&t); err != nil {
			return nil, err
		}
		t.ID = d.ID
		out = append(out, t.Public())
	}
	return out, nil
}

// TeacherNames maps teacher ids to display names.
func (s *Service) TeacherNames(ctx context.Context) (map[string]string, error) {
	all, err := s.Teachers(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(all))
	for _, t := range all {
		names[t.ID] = t.FullName()
	}
	return names, nil
}

// DeleteTeacher removes a teacher. Schedule slots that reference the
// teacher are left as they are.
func (s *Service) DeleteTeacher(ctx context.Context, id string) error {
	return s.store.Delete(ctx, school.Teachers, id)
}

// CreateAdmin stores an admin with a derived login secret, or with secret
// when it is not empty.
func (s *Service) CreateAdmin(ctx context.Context, a school.Admin, photo *Photo, secret string) (school.Admin, error) {
	a = normalizeAdmin(a)
	if err := school.Validate(a); err != nil {
		return school.Admin{}, err
	}
	if err := s.attach(ctx, "admins", photo, &a.Photo); err != nil {
		return school.Admin{}, err
	}
	if secret == "" {
		secret = credentials.DeriveSecret(a.LoginName())
	}
	hash, err := credentials.Hash(secret)
	if err != nil {
		return school.Admin{}, err
	}
	a.ID = ""
	a.PasswordHash = hash
	a.CreatedAt = s.now().UTC()
	id, err := s.store.Create(ctx, school.Admins, "", a)
	if err != nil {
		return school.Admin{}, errors.Wrap(err, "creating admin")
	}
	a.ID = id
	return a.Public(), nil
}

// UpdateAdmin overwrites the editable fields of an admin.
func (s *Service) UpdateAdmin(ctx context.Context, id string, a school.Admin, photo *Photo) (school.Admin, error) {
	a = normalizeAdmin(a)
	if err := school.Validate(a); err != nil {
		return school.Admin{}, err
	}
	if err := s.attach(ctx, "admins", photo, &a.Photo); err != nil {
		return school.Admin{}, err
	}
	fields := map[string]any{
		"firstName":  a.FirstName,
		"lastName":   a.LastName,
		"phone":      a.Phone,
		"email":      a.Email,
		"department": a.Department,
		"salary":     a.Salary,
	}
	if a.Photo != "" {
		fields["picture"] = a.Photo
	}
	if err := s.store.Update(ctx, school.Admins, id, fields); err != nil {
		return school.Admin{}, err
	}
	return s.Admin(ctx, id)
}

// Admin returns one admin.
func (s *Service) Admin(ctx context.Context, id string) (school.Admin, error) {
	doc, err := s.store.Get(ctx, school.Admins, id)
	if err != nil {
		return school.Admin{}, err
	}
	var a school.Admin
	if err := doc.Decode(&a); err != nil {
		return school.Admin{}, err
	}
	a.ID = doc.ID
	return a.Public(), nil
}

// Admins lists all admins in creation order.
func (s *Service) Admins(ctx context.Context) ([]school.Admin, error) {
	docs, err := s.store.List(ctx, school.Admins)
	if err != nil {
		return nil, errors.Wrap(err, "listing admins")
	}
	out := make([]school.Admin, 0, len(docs))
	for _, d := range docs {
		var a school.Admin
		if err := d.Decode(&a); err != nil {
			return nil, err
		}
		a.ID = d.ID
		out = append(out, a.Public())
	}
	return out, nil
}

// DeleteAdmin removes an admin.
func (s *Service) DeleteAdmin(ctx context.Context, id string) error {
	return s.store.Delete(ctx, school.Admins, id)
}

func (s *Service) attach(ctx context.Context, prefix string, photo *Photo, dst *string) error {
	if photo == nil {
		return nil
	}
	if s.blobs == nil {
		return ErrNoPhotoStore
	}
	url, err := s.blobs.Put(ctx, blob.Key(prefix, s.now(), photo.Filename), photo.Data)
	if err != nil {
		return errors.Wrap(err, "uploading picture")
	}
	*dst = url
	return nil
}

func normalizeTeacher(t school.Teacher) school.Teacher {
	t.FirstName = strings.TrimSpace(t.FirstName)
	t.LastName = strings.TrimSpace(t.LastName)
	t.Email = strings.TrimSpace(t.Email)
	if t.DutyTime == "" {
		t.DutyTime = school.FullTime
	}
	return t
}

func normalizeAdmin(a school.Admin) school.Admin {
	a.FirstName = strings.TrimSpace(a.FirstName)
	a.LastName = strings.TrimSpace(a.LastName)
	a.Email = strings.TrimSpace(a.Email)
	return a
}
