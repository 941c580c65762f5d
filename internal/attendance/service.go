package attendance

import (
	"context"
	"strings"
	"time"

	"schoolboard/internal/school"
)

// Status is the attendance mark of a day.
type Status string

const (
	Present Status = "present"
	Late    Status = "late"
	Absent  Status = "absent"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == Present || s == Late || s == Absent
}

// DayKind classifies a calendar day in a month view.
type DayKind string

const (
	KindMarked   DayKind = "marked"
	KindUnmarked DayKind = "unmarked"
	KindSunday   DayKind = "sunday"
	KindHoliday  DayKind = "holiday"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// Day is one cell of a month calendar.
type Day struct {
	Date    string  `json:"date"`
	Weekday string  `json:"weekday"`
	Kind    DayKind `json:"kind"`
	Status  Status  `json:"status,omitempty"`
	Holiday string  `json:"holiday,omitempty"`
}

// Summary counts the days of a month view.
type Summary struct {
	Present    int     `json:"present"`
	Late       int     `json:"late"`
	Absent     int     `json:"absent"`
	Unmarked   int     `json:"unmarked"`
	Sundays    int     `json:"sundays"`
	Holidays   int     `json:"holidays"`
	Percentage float64 `json:"percentage"`
}

// MonthView is the attendance calendar of one person for one month.
type MonthView struct {
	Role    school.Role `json:"role"`
	UserID  string      `json:"userId"`
	Month   string      `json:"month"`
	Days    []Day       `json:"days"`
	Summary Summary     `json:"summary"`
}

// Service marks attendance and builds month calendars.
type Service struct {
	repo     *Repository
	holidays map[string]string
}

// NewService creates a service; holidays maps "YYYY-MM-DD" to a name.
func NewService(repo *Repository, holidays map[string]string) *Service {
	if holidays == nil {
		holidays = map[string]string{}
	}
	return &Service{repo: repo, holidays: holidays}
}

// ParseHolidays reads entries of the form "YYYY-MM-DD" or "YYYY-MM-DD=Name".
func ParseHolidays(entries []string) (map[string]string, error) {
	out := map[string]string{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		date, name, _ := strings.Cut(e, "=")
		date = strings.TrimSpace(date)
		if _, err := time.Parse(dateLayout, date); err != nil {
			return nil, school.NewValidationError(school.FieldError{Field: "holidays", Error: "holiday " + e + " is not a YYYY-MM-DD date"})
		}
		name = strings.TrimSpace(name)
		if name == "" {
			name = "Holiday"
		}
		out[date] = name
	}
	return out, nil
}

// Mark stores the status of one person on one school day.
func (s *Service) Mark(ctx context.Context, role school.Role, userID, date string, status Status, markedBy string) (Record, error) {
	if _, err := role.Collection(); err != nil {
		return Record{}, school.NewValidationError(school.FieldError{Field: "role", Error: err.Error()})
	}
	if userID == "" {
		return Record{}, school.Required("userId")
	}
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return Record{}, school.NewValidationError(school.FieldError{Field: "date", Error: "date must be YYYY-MM-DD"})
	}
	if !status.Valid() {
		return Record{}, school.NewValidationError(school.FieldError{Field: "status", Error: "status must be present, late or absent"})
	}
	if day.Weekday() == time.Sunday {
		return Record{}, school.NewValidationError(school.FieldError{Field: "date", Error: date + " is a Sunday"})
	}
	if name, ok := s.holidays[date]; ok {
		return Record{}, school.NewValidationError(school.FieldError{Field: "date", Error: date + " is a holiday (" + name + ")"})
	}
	return s.repo.Upsert(ctx, Record{
		Role:     role,
		UserID:   userID,
		Date:     date,
		Month:    day.Format(monthLayout),
		Status:   status,
		MarkedBy: markedBy,
		MarkedAt: time.Now().UTC(),
	})
}

// Unmark clears the status stored for one person on one day.
func (s *Service) Unmark(ctx context.Context, role school.Role, userID, date string) error {
	if _, err := role.Collection(); err != nil {
		return school.NewValidationError(school.FieldError{Field: "role", Error: err.Error()})
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return school.NewValidationError(school.FieldError{Field: "date", Error: "date must be YYYY-MM-DD"})
	}
	return s.repo.Delete(ctx, role, userID, date)
}

// Month builds the calendar of a "YYYY-MM" month.
func (s *Service) Month(ctx context.Context, role school.Role, userID, month string) (MonthView, error) {
	first, err := time.Parse(monthLayout, month)
	if err != nil {
		return MonthView{}, school.NewValidationError(school.FieldError{Field: "month", Error: "month must be YYYY-MM"})
	}
	recs, err := s.repo.Month(ctx, role, userID, month)
	if err != nil {
		return MonthView{}, err
	}
	return BuildMonth(role, userID, first, recs, s.holidays), nil
}

// BuildMonth lays records out over every day of the month starting at first.
func BuildMonth(role school.Role, userID string, first time.Time, recs []Record, holidays map[string]string) MonthView {
	byDate := make(map[string]Status, len(recs))
	for _, r := range recs {
		byDate[r.Date] = r.Status
	}
	view := MonthView{Role: role, UserID: userID, Month: first.Format(monthLayout)}
	for d := first; d.Month() == first.Month(); d = d.AddDate(0, 0, 1) {
		date := d.Format(dateLayout)
		day := Day{Date: date, Weekday: d.Weekday().String()}
		switch status, marked := byDate[date]; {
		case marked:
			day.Kind, day.Status = KindMarked, status
			switch status {
			case Present:
				view.Summary.Present++
			case Late:
				view.Summary.Late++
			case Absent:
				view.Summary.Absent++
			}
		case d.Weekday() == time.Sunday:
			day.Kind = KindSunday
			view.Summary.Sundays++
		case holidays[date] != "":
			day.Kind, day.Holiday = KindHoliday, holidays[date]
			view.Summary.Holidays++
		default:
			day.Kind = KindUnmarked
			view.Summary.Unmarked++
		}
		view.Days = append(view.Days, day)
	}
	if total := view.Summary.Present + view.Summary.Late + view.Summary.Absent; total > 0 {
		view.Summary.Percentage = float64(view.Summary.Present+view.Summary.Late) * 100 / float64(total)
	}
	return view
}
