package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"schoolboard/internal/auth"
	"schoolboard/internal/credentials"
	"schoolboard/internal/school"
)

// ---------- Auth ----------

type loginRequest struct {
	Role     school.Role `json:"role" binding:"required"`
	Email    string      `json:"email" binding:"required"`
	Password string      `json:"password" binding:"required"`
}

type tokenResponse struct {
	auth.TokenPair
	UserID string      `json:"userId"`
	Role   school.Role `json:"role"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	id, err := h.registry.Verify(c.Request.Context(), req.Role, req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	tokens, err := h.issuer.Issue(id, string(req.Role), req.Email)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{TokenPair: tokens, UserID: id, Role: req.Role})
}

func (h *Handler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	tokens, claims, err := h.issuer.Refresh(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if _, err := h.profile(c, school.Role(claims.Role), claims.UserID()); err != nil {
		// the account was deleted since the token was issued
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, tokenResponse{TokenPair: tokens, UserID: claims.UserID(), Role: school.Role(claims.Role)})
}

// ---------- Self service ----------

func mustClaims(c *gin.Context) auth.Claims {
	claims, _ := auth.ClaimsFrom(c)
	return claims
}

func (h *Handler) profile(c *gin.Context, r school.Role, id string) (any, error) {
	ctx := c.Request.Context()
	switch r {
	case school.RoleStudent:
		return h.roster.Get(ctx, id)
	case school.RoleTeacher:
		return h.staff.Teacher(ctx, id)
	case school.RoleAdmin:
		return h.staff.Admin(ctx, id)
	}
	return nil, credentials.ErrInvalidCredentials
}

func (h *Handler) Me(c *gin.Context) {
	claims := mustClaims(c)
	p, err := h.profile(c, school.Role(claims.Role), claims.UserID())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": claims.Role, "profile": p})
}

// ChangeMyPassword sets a new password after checking the current one.
func (h *Handler) ChangeMyPassword(c *gin.Context) {
	var req struct {
		Current  string `json:"currentPassword" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	claims := mustClaims(c)
	r := school.Role(claims.Role)
	err := h.registry.CheckSecret(c.Request.Context(), claims.UserID(), r, req.Current)
	if errors.Is(err, credentials.ErrInvalidCredentials) {
		c.JSON(http.StatusForbidden, gin.H{"error": "current password is wrong"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.registry.SetSecret(c.Request.Context(), claims.UserID(), r, req.Password); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) MyAttendance(c *gin.Context) {
	claims := mustClaims(c)
	h.attendanceMonth(c, school.Role(claims.Role), claims.UserID())
}

func (h *Handler) MySchedule(c *gin.Context) {
	h.teacherSchedule(c, mustClaims(c).UserID())
}

// MyTimetable is the schedule of the calling student's class.
func (h *Handler) MyTimetable(c *gin.Context) {
	st, err := h.roster.Get(c.Request.Context(), mustClaims(c).UserID())
	if err != nil {
		h.fail(c, err)
		return
	}
	g, err := h.schedules.LoadForClass(c.Request.Context(), st.Class)
	if err != nil {
		h.fail(c, err)
		return
	}
	names, ok := h.teacherNames(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newScheduleView(g, names))
}
