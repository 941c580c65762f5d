package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"schoolboard/internal/school"
	"schoolboard/internal/staff"
)

// ---------- Teachers ----------

// picture reads the optional "picture" file of a staff form.
func picture(c *gin.Context) (*staff.Photo, bool) {
	name, data, ok, err := upload(c, "picture")
	if err != nil {
		badRequest(c, "failed to read picture")
		return nil, false
	}
	if !ok {
		return nil, true
	}
	return &staff.Photo{Filename: name, Data: data}, true
}

func (h *Handler) bindTeacher(c *gin.Context) (school.Teacher, *staff.Photo, bool) {
	var in school.Teacher
	if err := c.ShouldBind(&in); err != nil {
		badRequest(c, err.Error())
		return in, nil, false
	}
	photo, ok := picture(c)
	return in, photo, ok
}

func (h *Handler) CreateTeacher(c *gin.Context) {
	in, photo, ok := h.bindTeacher(c)
	if !ok {
		return
	}
	t, err := h.staff.CreateTeacher(c.Request.Context(), in, photo)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (h *Handler) ListTeachers(c *gin.Context) {
	teachers, err := h.staff.Teachers(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"teachers": teachers})
}

func (h *Handler) GetTeacher(c *gin.Context) {
	t, err := h.staff.Teacher(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) UpdateTeacher(c *gin.Context) {
	in, photo, ok := h.bindTeacher(c)
	if !ok {
		return
	}
	t, err := h.staff.UpdateTeacher(c.Request.Context(), c.Param("id"), in, photo)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteTeacher(c *gin.Context) {
	if err := h.staff.DeleteTeacher(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// TeacherSchedule is the daily view of one teacher across all classes.
func (h *Handler) TeacherSchedule(c *gin.Context) {
	h.teacherSchedule(c, c.Param("id"))
}

func (h *Handler) teacherSchedule(c *gin.Context, teacherID string) {
	ctx := c.Request.Context()
	t, err := h.staff.Teacher(ctx, teacherID)
	if err != nil {
		h.fail(c, err)
		return
	}
	slots, err := h.schedules.SlotsForTeacher(ctx, teacherID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"teacher": t, "periods": slots})
}

// ---------- Admins ----------

type adminRequest struct {
	school.Admin
	Password string `json:"password" form:"password"`
}

func (h *Handler) CreateAdmin(c *gin.Context) {
	var in adminRequest
	if err := c.ShouldBind(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	photo, ok := picture(c)
	if !ok {
		return
	}
	a, err := h.staff.CreateAdmin(c.Request.Context(), in.Admin, photo, in.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListAdmins(c *gin.Context) {
	admins, err := h.staff.Admins(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admins": admins})
}

func (h *Handler) GetAdmin(c *gin.Context) {
	a, err := h.staff.Admin(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateAdmin(c *gin.Context) {
	var in school.Admin
	if err := c.ShouldBind(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	photo, ok := picture(c)
	if !ok {
		return
	}
	a, err := h.staff.UpdateAdmin(c.Request.Context(), c.Param("id"), in, photo)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAdmin(c *gin.Context) {
	if err := h.staff.DeleteAdmin(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
