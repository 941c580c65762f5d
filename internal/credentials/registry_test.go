package credentials

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"schoolboard/internal/school"
	"schoolboard/internal/store"
)

func TestMain(m *testing.M) {
	Cost = bcrypt.MinCost
	os.Exit(m.Run())
}

func TestDeriveSecret(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "staff first name", in: "Ali", want: "Ali@123"},
		{name: "student full name", in: "Sara Khan", want: "Sara@123"},
		{name: "surrounding whitespace", in: "  Bilal   Ahmed ", want: "Bilal@123"},
		{name: "tab separated", in: "Hina\tAslam", want: "Hina@123"},
		{name: "empty", in: "", want: "@123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveSecret(tt.in))
			assert.Equal(t, DeriveSecret(tt.in), DeriveSecret(tt.in))
		})
	}
}

func TestDeriveSecretFromRecords(t *testing.T) {
	assert.Equal(t, "Ali@123", DeriveSecret(school.Teacher{FirstName: "Ali", LastName: "Raza"}.LoginName()))
	assert.Equal(t, "Sara@123", DeriveSecret(school.Student{FullName: "Sara Khan"}.LoginName()))
}

func setup(t *testing.T) (*Registry, store.Store) {
	s := store.NewMemory()
	r := NewRegistry(s)
	tick := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}
	return r, s
}

func TestSetSecret(t *testing.T) {
	ctx := context.Background()
	r, s := setup(t)

	id, err := s.Create(ctx, school.Teachers, "", school.Teacher{FirstName: "Ali", LastName: "Raza", Email: "ali@example.com"})
	require.NoError(t, err)

	require.NoError(t, r.SetSecret(ctx, id, school.RoleTeacher, "s3cret"))
	require.NoError(t, r.SetSecret(ctx, id, school.RoleTeacher, "s3cret-2"))

	doc, err := s.Get(ctx, school.Teachers, id)
	require.NoError(t, err)
	var rec school.Teacher
	require.NoError(t, doc.Decode(&rec))
	assert.NotEqual(t, "s3cret-2", rec.PasswordHash, "secrets are never stored in clear text")
	assert.True(t, Check(rec.PasswordHash, "s3cret-2"))
	assert.False(t, Check(rec.PasswordHash, "s3cret"))
	assert.Equal(t, "Raza", rec.LastName)

	hist, err := r.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, school.RoleTeacher, hist[0].UserType)
	assert.True(t, hist[0].Timestamp.Before(hist[1].Timestamp))
	assert.True(t, Check(hist[1].Password, "s3cret-2"))
}

func TestSetSecretErrors(t *testing.T) {
	ctx := context.Background()
	r, s := setup(t)

	tests := []struct {
		name       string
		id         string
		role       school.Role
		secret     string
		validation bool
		notFound   bool
	}{
		{name: "empty secret", id: "x", role: school.RoleAdmin, secret: " ", validation: true},
		{name: "empty id", id: "", role: school.RoleAdmin, secret: "pw", validation: true},
		{name: "unknown role", id: "x", role: "parent", secret: "pw", validation: true},
		{name: "missing record", id: "nobody", role: school.RoleStudent, secret: "pw", notFound: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.SetSecret(ctx, tt.id, tt.role, tt.secret)
			require.Error(t, err)
			assert.Equal(t, tt.validation, school.IsValidation(err))
			if tt.notFound {
				assert.ErrorIs(t, err, store.ErrNotFound)
			}
		})
	}

	entries, err := s.List(ctx, school.Passwords)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed changes leave no audit trail")
}

func TestVerifyAndReset(t *testing.T) {
	ctx := context.Background()
	r, s := setup(t)

	id, err := s.Create(ctx, school.Students, "", school.Student{FullName: "Sara Khan", Email: "Sara@Example.com", Class: "Class 1"})
	require.NoError(t, err)

	secret, err := r.ResetSecret(ctx, id, school.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, "Sara@123", secret)

	got, err := r.Verify(ctx, school.RoleStudent, "sara@example.com", "Sara@123")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = r.Verify(ctx, school.RoleStudent, "sara@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = r.Verify(ctx, school.RoleTeacher, "sara@example.com", "Sara@123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerifySharedEmail(t *testing.T) {
	ctx := context.Background()
	r, s := setup(t)

	var ids []string
	for _, name := range []string{"Ali Khan", "Sara Khan"} {
		id, err := s.Create(ctx, school.Students, "", school.Student{FullName: name, Email: "family@x.pk", Class: "Class 2"})
		require.NoError(t, err)
		_, err = r.ResetSecret(ctx, id, school.RoleStudent)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	tests := []struct {
		secret string
		want   string
	}{
		{secret: "Ali@123", want: ids[0]},
		{secret: "Sara@123", want: ids[1]},
	}
	for _, tt := range tests {
		t.Run(tt.secret, func(t *testing.T) {
			got, err := r.Verify(ctx, school.RoleStudent, "Family@x.pk", tt.secret)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := r.Verify(ctx, school.RoleStudent, "family@x.pk", "Hina@123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCheckSecret(t *testing.T) {
	ctx := context.Background()
	r, s := setup(t)

	id, err := s.Create(ctx, school.Teachers, "", school.Teacher{FirstName: "Ali", LastName: "Raza", Email: "ali@school.pk"})
	require.NoError(t, err)
	require.NoError(t, r.SetSecret(ctx, id, school.RoleTeacher, "s3cret"))

	assert.NoError(t, r.CheckSecret(ctx, id, school.RoleTeacher, "s3cret"))
	assert.ErrorIs(t, r.CheckSecret(ctx, id, school.RoleTeacher, "wrong"), ErrInvalidCredentials)
	assert.ErrorIs(t, r.CheckSecret(ctx, "missing", school.RoleTeacher, "s3cret"), ErrInvalidCredentials)
	assert.ErrorIs(t, r.CheckSecret(ctx, id, school.Role("parent"), "s3cret"), ErrInvalidCredentials)
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	r, s := setup(t)

	a, err := s.Create(ctx, school.Students, "", school.Student{FullName: "Ali Hassan", Class: "Class 1"})
	require.NoError(t, err)
	_, err = s.Create(ctx, school.Students, "", school.Student{FullName: "Sara Khan", Class: "Class 2"})
	require.NoError(t, err)
	require.NoError(t, r.SetSecret(ctx, a, school.RoleStudent, "pw"))

	accts, err := r.Accounts(ctx, school.RoleStudent, "Class 1")
	require.NoError(t, err)
	require.Len(t, accts, 1)
	assert.Equal(t, "Ali Hassan", accts[0].Name)
	assert.True(t, accts[0].PasswordSet)

	accts, err = r.Accounts(ctx, school.RoleStudent, "")
	require.NoError(t, err)
	require.Len(t, accts, 2)
	assert.False(t, accts[1].PasswordSet)
}
