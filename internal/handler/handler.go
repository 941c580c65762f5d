package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"schoolboard/internal/attendance"
	"schoolboard/internal/auth"
	"schoolboard/internal/courses"
	"schoolboard/internal/credentials"
	"schoolboard/internal/logger"
	"schoolboard/internal/roster"
	"schoolboard/internal/schedule"
	"schoolboard/internal/school"
	"schoolboard/internal/staff"
	"schoolboard/internal/store"
)

// HealthCheck reports the state of one dependency.
type HealthCheck func(ctx context.Context) bool

// Handler serves the dashboard API.
type Handler struct {
	roster     *roster.Service
	schedules  *schedule.Manager
	registry   *credentials.Registry
	staff      *staff.Service
	courses    *courses.Service
	attendance *attendance.Service
	issuer     auth.Issuer
	log        *logger.Logger
	checks     map[string]HealthCheck
}

// Deps bundles the services a Handler routes to.
type Deps struct {
	Roster     *roster.Service
	Schedules  *schedule.Manager
	Registry   *credentials.Registry
	Staff      *staff.Service
	Courses    *courses.Service
	Attendance *attendance.Service
	Issuer     auth.Issuer
	Log        *logger.Logger
	Checks     map[string]HealthCheck
}

func New(d Deps) *Handler {
	return &Handler{
		roster:     d.Roster,
		schedules:  d.Schedules,
		registry:   d.Registry,
		staff:      d.Staff,
		courses:    d.Courses,
		attendance: d.Attendance,
		issuer:     d.Issuer,
		log:        d.Log,
		checks:     d.Checks,
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.Healthz)

	r.POST("/v1/auth/login", h.Login)
	r.POST("/v1/auth/refresh", h.Refresh)

	v1 := r.Group("/v1", auth.Authenticate(h.issuer))

	me := v1.Group("/me")
	me.GET("", h.Me)
	me.PUT("/password", h.ChangeMyPassword)
	me.GET("/attendance", h.MyAttendance)
	me.GET("/schedule", auth.RequireRole(string(school.RoleTeacher)), h.MySchedule)
	me.GET("/timetable", auth.RequireRole(string(school.RoleStudent)), h.MyTimetable)

	admin := v1.Group("", auth.RequireRole(string(school.RoleAdmin)))

	admin.GET("/students", h.ListStudents)
	admin.GET("/students/stream", h.StreamStudents)
	admin.GET("/students/next-grno", h.NextGRNo)
	admin.GET("/students/check", h.CheckNumbering)
	admin.POST("/students/repair", h.RepairNumbering)
	admin.POST("/students", h.CreateStudent)
	admin.GET("/students/:id", h.GetStudent)
	admin.PUT("/students/:id", h.UpdateStudent)
	admin.DELETE("/students/:id", h.DeleteStudent)

	admin.GET("/teachers", h.ListTeachers)
	admin.POST("/teachers", h.CreateTeacher)
	admin.GET("/teachers/:id", h.GetTeacher)
	admin.PUT("/teachers/:id", h.UpdateTeacher)
	admin.DELETE("/teachers/:id", h.DeleteTeacher)
	admin.GET("/teachers/:id/schedule", h.TeacherSchedule)

	admin.GET("/admins", h.ListAdmins)
	admin.POST("/admins", h.CreateAdmin)
	admin.GET("/admins/:id", h.GetAdmin)
	admin.PUT("/admins/:id", h.UpdateAdmin)
	admin.DELETE("/admins/:id", h.DeleteAdmin)

	admin.GET("/schedules", h.ListSchedules)
	admin.GET("/schedules/conflicts", h.ScheduleConflicts)
	admin.GET("/schedules/:class", h.GetSchedule)
	admin.PUT("/schedules/:class", h.SaveSchedule)

	admin.GET("/courses", h.ListCourses)
	admin.GET("/courses/:class", h.GetCourses)
	admin.POST("/courses/:class/subjects", h.AddSubject)
	admin.PUT("/courses/:class/subjects/:index", h.RenameSubject)
	admin.DELETE("/courses/:class/subjects/:index", h.RemoveSubject)

	admin.GET("/users", h.ListAccounts)
	admin.PUT("/users/:type/:id/password", h.SetPassword)
	admin.POST("/users/:type/:id/password/reset", h.ResetPassword)
	admin.GET("/users/:type/:id/password/history", h.PasswordHistory)

	admin.PUT("/attendance", h.MarkAttendance)
	admin.GET("/attendance/:type/:id", h.AttendanceMonth)
	admin.DELETE("/attendance/:type/:id/:date", h.UnmarkAttendance)
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	body := gin.H{"status": "ok"}
	status := http.StatusOK
	for name, check := range h.checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// ---------- Errors ----------

// fail writes the response for err.
func (h *Handler) fail(c *gin.Context, err error) {
	var verr *school.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input", "fields": verr.Fields})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, store.ErrExists), errors.Is(err, courses.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": errors.Cause(err).Error()})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "concurrent update, try again"})
	case errors.Is(err, roster.ErrNoPhotoStore), errors.Is(err, staff.ErrNoPhotoStore):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
	case errors.Is(err, credentials.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		h.log.Error(c.Request.Method+" "+c.FullPath()+" failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// upload reads the optional multipart file field. ok is false when the
// request carries no such file.
func upload(c *gin.Context, field string) (filename string, data []byte, ok bool, err error) {
	if c.ContentType() != gin.MIMEMultipartPOSTForm {
		return "", nil, false, nil
	}
	file, header, err := c.Request.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil, false, nil
	}
	if err != nil {
		return "", nil, false, err
	}
	defer file.Close()
	data, err = io.ReadAll(file)
	if err != nil {
		return "", nil, false, err
	}
	return header.Filename, data, true, nil
}

func role(c *gin.Context, param string) (school.Role, bool) {
	r := school.Role(c.Param(param))
	if _, err := r.Collection(); err != nil {
		badRequest(c, "unknown user type "+string(r))
		return "", false
	}
	return r, true
}
