package school

import (
	"fmt"
	"strings"
	"time"
)

// Collection names in the document store.
const (
	Admins         = "admins"
	Teachers       = "teachers"
	Students       = "students"
	ClassSchedules = "classSchedules"
	Passwords      = "passwords"
	Courses        = "courses"
	Attendance     = "attendance"
)

// Role identifies the kind of person a record belongs to.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Collection returns the collection holding records of this role.
func (r Role) Collection() (string, error) {
	switch r {
	case RoleAdmin:
		return Admins, nil
	case RoleTeacher:
		return Teachers, nil
	case RoleStudent:
		return Students, nil
	}
	return "", fmt.Errorf("unknown role %q", string(r))
}

// ClassCount is the number of fixed classes.
const ClassCount = 10

// Classes lists the class labels in display order.
var Classes = func() []string {
	out := make([]string, ClassCount)
	for i := range out {
		out[i] = fmt.Sprintf("Class %d", i+1)
	}
	return out
}()

// IsClass reports whether label is one of the fixed class labels.
func IsClass(label string) bool {
	for _, c := range Classes {
		if c == label {
			return true
		}
	}
	return false
}

// Departments admins can belong to.
var Departments = []string{
	"Main Administration Department",
	"Academic Administration Department",
	"Examination Department",
	"Admission Department",
	"Accounts/Finance Department",
	"Human Resources (HR) Department",
	"IT/Computer Department",
	"Library Department",
	"Transport Department",
	"Student Affairs Department",
}

// DutyTime is a teacher's employment classification.
type DutyTime string

const (
	FullTime DutyTime = "Full Time"
	HalfTime DutyTime = "Half Time"
	Hourly   DutyTime = "Hourly"
)

// DutyTimes lists the allowed duty-time categories.
var DutyTimes = []DutyTime{FullTime, HalfTime, Hourly}

// Student is a member of the roster.
type Student struct {
	ID               string    `json:"id,omitempty"`
	FullName         string    `json:"fullName" form:"fullName" validate:"notblank"`
	Phone            string    `json:"phone" form:"phone"`
	Email            string    `json:"email" form:"email" validate:"omitempty,email"`
	Address          string    `json:"address" form:"address"`
	Class            string    `json:"class" form:"class" validate:"required,classlabel"`
	GRNo             int       `json:"grNo"`
	RollNo           int       `json:"rollNo"`
	FatherName       string    `json:"fatherName" form:"fatherName"`
	FatherPhone      string    `json:"fatherPhone" form:"fatherPhone"`
	FatherOccupation string    `json:"fatherOccupation" form:"fatherOccupation"`
	MotherName       string    `json:"motherName" form:"motherName"`
	MotherPhone      string    `json:"motherPhone" form:"motherPhone"`
	MotherOccupation string    `json:"motherOccupation" form:"motherOccupation"`
	Photo            string    `json:"photo,omitempty"`
	PasswordHash     string    `json:"passwordHash,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// LoginName is the name field the login secret is derived from.
func (s Student) LoginName() string { return s.FullName }

// Public returns a copy safe to hand to API clients.
func (s Student) Public() Student {
	s.PasswordHash = ""
	return s
}

// Teacher is a member of the teaching staff.
type Teacher struct {
	ID           string    `json:"id,omitempty"`
	FirstName    string    `json:"firstName" form:"firstName" validate:"notblank"`
	LastName     string    `json:"lastName" form:"lastName" validate:"notblank"`
	Email        string    `json:"email" form:"email" validate:"omitempty,email"`
	Phone        string    `json:"phone" form:"phone"`
	Address      string    `json:"address" form:"address"`
	Education    string    `json:"education" form:"education"`
	DOB          string    `json:"dob" form:"dob" validate:"omitempty,datetime=2006-01-02"`
	Salary       int       `json:"salary" form:"salary" validate:"gte=0"`
	DutyTime     DutyTime  `json:"dutyTime" form:"dutyTime" validate:"dutytime"`
	Photo        string    `json:"picture,omitempty"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// FullName joins first and last name.
func (t Teacher) FullName() string { return strings.TrimSpace(t.FirstName + " " + t.LastName) }

// LoginName is the name field the login secret is derived from.
func (t Teacher) LoginName() string { return t.FirstName }

// Public returns a copy safe to hand to API clients.
func (t Teacher) Public() Teacher {
	t.PasswordHash = ""
	return t
}

// Admin is a member of the administration.
type Admin struct {
	ID           string    `json:"id,omitempty"`
	FirstName    string    `json:"firstName" form:"firstName" validate:"notblank"`
	LastName     string    `json:"lastName" form:"lastName" validate:"notblank"`
	Phone        string    `json:"phone" form:"phone"`
	Email        string    `json:"email" form:"email" validate:"required,email"`
	Department   string    `json:"department" form:"department" validate:"required,department"`
	Salary       int       `json:"salary" form:"salary" validate:"gte=0"`
	Photo        string    `json:"picture,omitempty"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// FullName joins first and last name.
func (a Admin) FullName() string { return strings.TrimSpace(a.FirstName + " " + a.LastName) }

// LoginName is the name field the login secret is derived from.
func (a Admin) LoginName() string { return a.FirstName }

// Public returns a copy safe to hand to API clients.
func (a Admin) Public() Admin {
	a.PasswordHash = ""
	return a
}
