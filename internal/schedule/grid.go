package schedule

import (
	"fmt"
	"time"
)

// Periods is the number of periods in a school day.
const Periods = 7

const (
	dayStart     = 8 * 60
	periodLength = 30
)

// Placeholder marks an empty cell in a derived view.
const Placeholder = "-"

// Unassigned is shown for slots whose teacher is unset or no longer exists.
const Unassigned = "Unassigned"

// Slot is one period's assignment within a class schedule.
type Slot struct {
	Period    int    `json:"period"`
	Subject   string `json:"subject"`
	TeacherID string `json:"teacherId"`
}

// ClassSchedule is the stored schedule document of one class.
type ClassSchedule struct {
	ClassName string     `json:"className"`
	Periods   []Slot     `json:"periods"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Grid is the editable schedule of one class. Exists is false when no
// document has been saved for the class yet.
type Grid struct {
	ClassName string `json:"className"`
	Periods   []Slot `json:"periods"`
	Exists    bool   `json:"exists"`
}

// DefaultSlots returns seven empty slots numbered 1..7.
func DefaultSlots() []Slot {
	slots := make([]Slot, Periods)
	for i := range slots {
		slots[i] = Slot{Period: i + 1}
	}
	return slots
}

// PeriodWindow returns the minutes since midnight at which period p starts and ends.
func PeriodWindow(p int) (start, end int) {
	start = dayStart + (p-1)*periodLength
	return start, start + periodLength
}

// PeriodTime renders the window of period p as "HH:MM - HH:MM".
func PeriodTime(p int) string {
	start, end := PeriodWindow(p)
	return clock(start) + " - " + clock(end)
}

func clock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// TeacherSlot is one row of a teacher's daily view.
type TeacherSlot struct {
	Period    int    `json:"period"`
	Time      string `json:"time"`
	ClassName string `json:"className"`
	Subject   string `json:"subject"`
}

// SlotsForTeacher scans schedules in order and, for each period, reports the
// first class whose slot references teacherID. Later matches in the same
// period are not shown; use FindConflicts to surface them.
func SlotsForTeacher(schedules []ClassSchedule, teacherID string) []TeacherSlot {
	out := make([]TeacherSlot, 0, Periods)
	for p := 1; p <= Periods; p++ {
		row := TeacherSlot{Period: p, Time: PeriodTime(p), ClassName: Placeholder, Subject: Placeholder}
	scan:
		for _, cs := range schedules {
			for _, slot := range cs.Periods {
				if teacherID != "" && slot.Period == p && slot.TeacherID == teacherID {
					row.ClassName = cs.ClassName
					row.Subject = slot.Subject
					break scan
				}
			}
		}
		out = append(out, row)
	}
	return out
}

// Conflict is a teacher booked in more than one class for the same period.
type Conflict struct {
	Period    int      `json:"period"`
	Time      string   `json:"time"`
	TeacherID string   `json:"teacherId"`
	Classes   []string `json:"classes"`
}

// FindConflicts lists every double booking across schedules.
func FindConflicts(schedules []ClassSchedule) []Conflict {
	type key struct {
		period  int
		teacher string
	}
	seen := map[key][]string{}
	var order []key
	for _, cs := range schedules {
		for _, slot := range cs.Periods {
			if slot.TeacherID == "" {
				continue
			}
			k := key{slot.Period, slot.TeacherID}
			if _, ok := seen[k]; !ok {
				order = append(order, k)
			}
			seen[k] = append(seen[k], cs.ClassName)
		}
	}
	var out []Conflict
	for _, k := range order {
		if classes := seen[k]; len(classes) > 1 {
			out = append(out, Conflict{Period: k.period, Time: PeriodTime(k.period), TeacherID: k.teacher, Classes: classes})
		}
	}
	return out
}

// ResolvedSlot is a slot rendered with its time window and teacher name.
type ResolvedSlot struct {
	Slot
	Time        string `json:"time"`
	TeacherName string `json:"teacherName"`
}

// Resolve renders slots with teacher names looked up in names; unset or
// dangling teacher references become "Unassigned".
func Resolve(slots []Slot, names map[string]string) []ResolvedSlot {
	out := make([]ResolvedSlot, 0, len(slots))
	for _, s := range slots {
		name, ok := names[s.TeacherID]
		if s.TeacherID == "" || !ok {
			name = Unassigned
		}
		out = append(out, ResolvedSlot{Slot: s, Time: PeriodTime(s.Period), TeacherName: name})
	}
	return out
}
