package courses

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolboard/internal/school"
	"schoolboard/internal/store"
)

func TestDefaults(t *testing.T) {
	svc := NewService(store.NewMemory())
	all, err := svc.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 10)
	for _, c := range all {
		assert.Equal(t, DefaultSubjects, c.Subjects)
	}
}

func TestEditSubjects(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	svc := NewService(s)

	c, err := svc.AddSubject(ctx, "Class 3", "Drawing")
	require.NoError(t, err)
	assert.Equal(t, "Drawing", c.Subjects[len(c.Subjects)-1])

	_, err = svc.AddSubject(ctx, "Class 3", "drawing")
	assert.ErrorIs(t, err, ErrDuplicate)

	c, err = svc.RenameSubject(ctx, "Class 3", 0, "Maths")
	require.NoError(t, err)
	assert.Equal(t, "Maths", c.Subjects[0])

	c, err = svc.RemoveSubject(ctx, "Class 3", 1)
	require.NoError(t, err)
	assert.NotContains(t, c.Subjects, "English")
	assert.Len(t, c.Subjects, len(DefaultSubjects))

	got, err := svc.ForClass(ctx, "Class 3")
	require.NoError(t, err)
	assert.Equal(t, c.Subjects, got.Subjects)

	other, err := svc.ForClass(ctx, "Class 4")
	require.NoError(t, err)
	assert.Equal(t, DefaultSubjects, other.Subjects, "other classes are untouched")

	docs, err := s.List(ctx, school.Courses)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestEditErrors(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemory())

	_, err := svc.AddSubject(ctx, "Class 99", "Art")
	assert.True(t, school.IsValidation(err))
	_, err = svc.AddSubject(ctx, "Class 1", "  ")
	assert.True(t, school.IsValidation(err))
	_, err = svc.RenameSubject(ctx, "Class 1", 42, "Art")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = svc.RemoveSubject(ctx, "Class 1", -1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
