package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"schoolboard/internal/attendance"
	"schoolboard/internal/school"
)

// ---------- Users & passwords ----------

type passwordRequest struct {
	Password string `json:"password"`
}

type historyEntry struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	UserType  school.Role `json:"userType"`
	Timestamp time.Time   `json:"timestamp"`
}

// ListAccounts lists people of ?type= (default student), optionally by ?class=.
func (h *Handler) ListAccounts(c *gin.Context) {
	r := school.Role(c.DefaultQuery("type", string(school.RoleStudent)))
	accounts, err := h.registry.Accounts(c.Request.Context(), r, c.Query("class"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": accounts})
}

func (h *Handler) SetPassword(c *gin.Context) {
	r, ok := role(c, "type")
	if !ok {
		return
	}
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.registry.SetSecret(c.Request.Context(), c.Param("id"), r, req.Password); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ResetPassword restores the derived default password and returns it once.
func (h *Handler) ResetPassword(c *gin.Context) {
	r, ok := role(c, "type")
	if !ok {
		return
	}
	secret, err := h.registry.ResetSecret(c.Request.Context(), c.Param("id"), r)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"password": secret})
}

// PasswordHistory lists when a person's password changed; hashes stay server side.
func (h *Handler) PasswordHistory(c *gin.Context) {
	if _, ok := role(c, "type"); !ok {
		return
	}
	entries, err := h.registry.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntry{ID: e.ID, UserID: e.UserID, UserType: e.UserType, Timestamp: e.Timestamp})
	}
	c.JSON(http.StatusOK, gin.H{"history": out})
}

// ---------- Attendance ----------

type markRequest struct {
	Role   school.Role       `json:"role"`
	UserID string            `json:"userId"`
	Date   string            `json:"date"`
	Status attendance.Status `json:"status"`
}

func (h *Handler) MarkAttendance(c *gin.Context) {
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.UserID != "" && !h.exists(c, req.Role, req.UserID) {
		return
	}
	claims := mustClaims(c)
	rec, err := h.attendance.Mark(c.Request.Context(), req.Role, req.UserID, req.Date, req.Status, claims.UserID())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) UnmarkAttendance(c *gin.Context) {
	r, ok := role(c, "type")
	if !ok {
		return
	}
	if err := h.attendance.Unmark(c.Request.Context(), r, c.Param("id"), c.Param("date")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) AttendanceMonth(c *gin.Context) {
	r, ok := role(c, "type")
	if !ok {
		return
	}
	h.attendanceMonth(c, r, c.Param("id"))
}

func (h *Handler) attendanceMonth(c *gin.Context, r school.Role, userID string) {
	month := c.DefaultQuery("month", time.Now().Format("2006-01"))
	view, err := h.attendance.Month(c.Request.Context(), r, userID, month)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// exists writes an error response and returns false unless the person exists.
func (h *Handler) exists(c *gin.Context, r school.Role, id string) bool {
	ctx := c.Request.Context()
	var err error
	switch r {
	case school.RoleStudent:
		_, err = h.roster.Get(ctx, id)
	case school.RoleTeacher:
		_, err = h.staff.Teacher(ctx, id)
	case school.RoleAdmin:
		_, err = h.staff.Admin(ctx, id)
	default:
		err = school.NewValidationError(school.FieldError{Field: "role", Error: "role must be admin, teacher or student"})
	}
	if err != nil {
		h.fail(c, err)
		return false
	}
	return true
}
