package attendance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolboard/internal/school"
	"schoolboard/internal/store"
)

func setup(t *testing.T) *Service {
	holidays, err := ParseHolidays([]string{"2025-03-23=Pakistan Day", " 2025-03-31 "})
	require.NoError(t, err)
	return NewService(NewRepository(store.NewMemory()), holidays)
}

func TestMarkAndMonth(t *testing.T) {
	ctx := context.Background()
	svc := setup(t)

	_, err := svc.Mark(ctx, school.RoleStudent, "s1", "2025-03-03", Present, "admin-1")
	require.NoError(t, err)
	_, err = svc.Mark(ctx, school.RoleStudent, "s1", "2025-03-04", Late, "admin-1")
	require.NoError(t, err)
	_, err = svc.Mark(ctx, school.RoleStudent, "s1", "2025-03-05", Absent, "admin-1")
	require.NoError(t, err)
	// re-marking a day replaces its status
	_, err = svc.Mark(ctx, school.RoleStudent, "s1", "2025-03-05", Present, "admin-2")
	require.NoError(t, err)
	// other people and months stay out of the view
	_, err = svc.Mark(ctx, school.RoleStudent, "s2", "2025-03-03", Absent, "admin-1")
	require.NoError(t, err)
	_, err = svc.Mark(ctx, school.RoleTeacher, "s1", "2025-03-03", Absent, "admin-1")
	require.NoError(t, err)
	_, err = svc.Mark(ctx, school.RoleStudent, "s1", "2025-04-01", Absent, "admin-1")
	require.NoError(t, err)

	view, err := svc.Month(ctx, school.RoleStudent, "s1", "2025-03")
	require.NoError(t, err)
	require.Len(t, view.Days, 31)

	assert.Equal(t, Day{Date: "2025-03-02", Weekday: "Sunday", Kind: KindSunday}, view.Days[1])
	assert.Equal(t, Day{Date: "2025-03-03", Weekday: "Monday", Kind: KindMarked, Status: Present}, view.Days[2])
	assert.Equal(t, Status(Present), view.Days[4].Status)
	// 2025-03-23 is a Sunday and a holiday; Sunday wins
	assert.Equal(t, KindSunday, view.Days[22].Kind)
	assert.Equal(t, Day{Date: "2025-03-31", Weekday: "Monday", Kind: KindHoliday, Holiday: "Holiday"}, view.Days[30])

	assert.Equal(t, Summary{
		Present:    2,
		Late:       1,
		Absent:     0,
		Unmarked:   31 - 3 - 5 - 1,
		Sundays:    5,
		Holidays:   1,
		Percentage: 100,
	}, view.Summary)
}

func TestMarkValidation(t *testing.T) {
	ctx := context.Background()
	svc := setup(t)
	tests := []struct {
		name   string
		role   school.Role
		user   string
		date   string
		status Status
	}{
		{name: "unknown role", role: "parent", user: "u", date: "2025-03-03", status: Present},
		{name: "missing user", role: school.RoleStudent, date: "2025-03-03", status: Present},
		{name: "bad date", role: school.RoleStudent, user: "u", date: "03/03/2025", status: Present},
		{name: "bad status", role: school.RoleStudent, user: "u", date: "2025-03-03", status: "sick"},
		{name: "sunday", role: school.RoleStudent, user: "u", date: "2025-03-02", status: Present},
		{name: "holiday", role: school.RoleStudent, user: "u", date: "2025-03-31", status: Present},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Mark(ctx, tt.role, tt.user, tt.date, tt.status, "")
			assert.True(t, school.IsValidation(err), "got %v", err)
		})
	}

	_, err := svc.Month(ctx, school.RoleStudent, "u", "March")
	assert.True(t, school.IsValidation(err))
}

func TestUnmark(t *testing.T) {
	ctx := context.Background()
	svc := setup(t)

	_, err := svc.Mark(ctx, school.RoleTeacher, "t1", "2025-03-04", Absent, "admin-1")
	require.NoError(t, err)
	require.NoError(t, svc.Unmark(ctx, school.RoleTeacher, "t1", "2025-03-04"))

	view, err := svc.Month(ctx, school.RoleTeacher, "t1", "2025-03")
	require.NoError(t, err)
	assert.Equal(t, KindUnmarked, view.Days[3].Kind)
	assert.Zero(t, view.Summary.Absent)

	assert.ErrorIs(t, svc.Unmark(ctx, school.RoleTeacher, "t1", "2025-03-04"), store.ErrNotFound)
	assert.True(t, school.IsValidation(svc.Unmark(ctx, school.RoleTeacher, "t1", "04/03/2025")))
	assert.True(t, school.IsValidation(svc.Unmark(ctx, school.Role("parent"), "t1", "2025-03-04")))
}

func TestParseHolidays(t *testing.T) {
	_, err := ParseHolidays([]string{"tomorrow"})
	assert.Error(t, err)

	h, err := ParseHolidays([]string{"", "2025-01-01=New Year"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"2025-01-01": "New Year"}, h)
}

func TestMonthPercentage(t *testing.T) {
	ctx := context.Background()
	svc := setup(t)
	for date, st := range map[string]Status{"2025-02-03": Present, "2025-02-04": Absent, "2025-02-05": Late, "2025-02-06": Absent} {
		_, err := svc.Mark(ctx, school.RoleTeacher, "t1", date, st, "")
		require.NoError(t, err)
	}
	view, err := svc.Month(ctx, school.RoleTeacher, "t1", "2025-02")
	require.NoError(t, err)
	assert.Len(t, view.Days, 28)
	assert.InDelta(t, 50.0, view.Summary.Percentage, 0.001)
}
