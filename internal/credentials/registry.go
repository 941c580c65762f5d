package credentials

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"schoolboard/internal/school"
	"schoolboard/internal/store"
)

// DefaultSuffix is appended to the first name token of a derived secret.
const DefaultSuffix = "@123"

// ErrInvalidCredentials is returned by Verify when login fails.
var ErrInvalidCredentials = errors.New("invalid email or password")

// DeriveSecret returns the first whitespace-delimited token of name followed by "@123".
func DeriveSecret(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return DefaultSuffix
	}
	return fields[0] + DefaultSuffix
}

// Cost is the bcrypt work factor used by Hash.
var Cost = bcrypt.DefaultCost

// Hash returns the bcrypt hash of secret.
func Hash(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), Cost)
	if err != nil {
		return "", errors.Wrap(err, "hashing secret")
	}
	return string(b), nil
}

// Check reports whether secret matches hash.
func Check(hash, secret string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// AuditEntry is one append-only password history record.
type AuditEntry struct {
	ID        string      `json:"id,omitempty"`
	UserID    string      `json:"userId"`
	UserType  school.Role `json:"userType"`
	Password  string      `json:"password"`
	Timestamp time.Time   `json:"timestamp"`
}

// Account is the user-management view of a person record.
type Account struct {
	ID          string      `json:"id"`
	Type        school.Role `json:"type"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Class       string      `json:"class,omitempty"`
	PasswordSet bool        `json:"passwordSet"`
}

// Registry stores login secrets on person records and keeps their history.
type Registry struct {
	store store.Store
	now   func() time.Time
}

// NewRegistry creates a registry backed by s.
func NewRegistry(s store.Store) *Registry {
	return &Registry{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// SetSecret hashes secret onto the person's record and appends an audit
// entry, both in one transaction.
func (r *Registry) SetSecret(ctx context.Context, personID string, personType school.Role, secret string) error {
	if personID == "" {
		return school.Required("userId")
	}
	if strings.TrimSpace(secret) == "" {
		return school.Required("password")
	}
	collection, err := personType.Collection()
	if err != nil {
		return school.NewValidationError(school.FieldError{Field: "userType", Error: err.Error()})
	}
	hash, err := Hash(secret)
	if err != nil {
		return err
	}
	return r.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Update(ctx, collection, personID, map[string]any{"passwordHash": hash}); err != nil {
			return errors.Wrap(err, "storing secret")
		}
		entry := AuditEntry{UserID: personID, UserType: personType, Password: hash, Timestamp: r.now()}
		if _, err := tx.Create(ctx, school.Passwords, "", entry); err != nil {
			return errors.Wrap(err, "appending password history")
		}
		return nil
	})
}

// ResetSecret restores the derived default secret for a person.
func (r *Registry) ResetSecret(ctx context.Context, personID string, personType school.Role) (string, error) {
	collection, err := personType.Collection()
	if err != nil {
		return "", school.NewValidationError(school.FieldError{Field: "userType", Error: err.Error()})
	}
	doc, err := r.store.Get(ctx, collection, personID)
	if err != nil {
		return "", err
	}
	name, err := loginName(doc, personType)
	if err != nil {
		return "", err
	}
	secret := DeriveSecret(name)
	return secret, r.SetSecret(ctx, personID, personType, secret)
}

// History returns the audit entries of a person, oldest first.
func (r *Registry) History(ctx context.Context, personID string) ([]AuditEntry, error) {
	docs, err := r.store.List(ctx, school.Passwords, store.Where("userId", personID))
	if err != nil {
		return nil, errors.Wrap(err, "listing password history")
	}
	out := make([]AuditEntry, 0, len(docs))
	for _, d := range docs {
		var e AuditEntry
		if err := d.Decode(&e); err != nil {
			return nil, err
		}
		e.ID = d.ID
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// Verify returns the id of the person of the given type whose email and
// secret match. Emails are not unique; every record sharing the email is
// tried in store order.
func (r *Registry) Verify(ctx context.Context, personType school.Role, email, secret string) (string, error) {
	collection, err := personType.Collection()
	if err != nil {
		return "", ErrInvalidCredentials
	}
	email = strings.TrimSpace(strings.ToLower(email))
	docs, err := r.store.List(ctx, collection)
	if err != nil {
		return "", errors.Wrap(err, "looking up account")
	}
	for _, d := range docs {
		var rec struct {
			Email        string `json:"email"`
			PasswordHash string `json:"passwordHash"`
		}
		if err := d.Decode(&rec); err != nil {
			return "", err
		}
		if strings.ToLower(rec.Email) != email || email == "" {
			continue
		}
		if Check(rec.PasswordHash, secret) {
			return d.ID, nil
		}
	}
	return "", ErrInvalidCredentials
}

// CheckSecret reports ErrInvalidCredentials unless secret matches the
// stored hash of that one person.
func (r *Registry) CheckSecret(ctx context.Context, personID string, personType school.Role, secret string) error {
	collection, err := personType.Collection()
	if err != nil {
		return ErrInvalidCredentials
	}
	doc, err := r.store.Get(ctx, collection, personID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return errors.Wrap(err, "looking up account")
	}
	var rec struct {
		PasswordHash string `json:"passwordHash"`
	}
	if err := doc.Decode(&rec); err != nil {
		return err
	}
	if !Check(rec.PasswordHash, secret) {
		return ErrInvalidCredentials
	}
	return nil
}

// Accounts lists people of one type for user management; class filters
// students and is ignored for staff.
func (r *Registry) Accounts(ctx context.Context, personType school.Role, class string) ([]Account, error) {
	collection, err := personType.Collection()
	if err != nil {
		return nil, school.NewValidationError(school.FieldError{Field: "userType", Error: err.Error()})
	}
	var filters []store.Filter
	if personType == school.RoleStudent && class != "" {
		filters = append(filters, store.Where("class", class))
	}
	docs, err := r.store.List(ctx, collection, filters...)
	if err != nil {
		return nil, errors.Wrap(err, "listing accounts")
	}
	out := make([]Account, 0, len(docs))
	for _, d := range docs {
		var rec struct {
			FullName     string `json:"fullName"`
			FirstName    string `json:"firstName"`
			LastName     string `json:"lastName"`
			Email        string `json:"email"`
			Class        string `json:"class"`
			PasswordHash string `json:"passwordHash"`
		}
		if err := d.Decode(&rec); err != nil {
			return nil, err
		}
		name := rec.FullName
		if name == "" {
			name = strings.TrimSpace(rec.FirstName + " " + rec.LastName)
		}
		out = append(out, Account{
			ID:          d.ID,
			Type:        personType,
			Name:        name,
			Email:       rec.Email,
			Class:       rec.Class,
			PasswordSet: rec.PasswordHash != "",
		})
	}
	return out, nil
}

func loginName(doc store.Doc, personType school.Role) (string, error) {
	if personType == school.RoleStudent {
		var s school.Student
		if err := doc.Decode(&s); err != nil {
			return "", err
		}
		return s.LoginName(), nil
	}
	var staff struct {
		FirstName string `json:"firstName"`
	}
	if err := doc.Decode(&staff); err != nil {
		return "", err
	}
	return staff.FirstName, nil
}
