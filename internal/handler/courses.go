package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"schoolboard/internal/courses"
)

// ---------- Courses ----------

type subjectRequest struct {
	Subject string `json:"subject"`
}

func (h *Handler) ListCourses(c *gin.Context) {
	all, err := h.courses.All(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": all})
}

func (h *Handler) GetCourses(c *gin.Context) {
	cat, err := h.courses.ForClass(c.Request.Context(), c.Param("class"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cat)
}

func (h *Handler) AddSubject(c *gin.Context) {
	var req subjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	cat, err := h.courses.AddSubject(c.Request.Context(), c.Param("class"), req.Subject)
	h.catalog(c, cat, err)
}

func (h *Handler) RenameSubject(c *gin.Context) {
	idx, ok := index(c)
	if !ok {
		return
	}
	var req subjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	cat, err := h.courses.RenameSubject(c.Request.Context(), c.Param("class"), idx, req.Subject)
	h.catalog(c, cat, err)
}

func (h *Handler) RemoveSubject(c *gin.Context) {
	idx, ok := index(c)
	if !ok {
		return
	}
	cat, err := h.courses.RemoveSubject(c.Request.Context(), c.Param("class"), idx)
	h.catalog(c, cat, err)
}

func (h *Handler) catalog(c *gin.Context, cat courses.Catalog, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cat)
}

func index(c *gin.Context) (int, bool) {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		badRequest(c, "subject index must be a number")
		return 0, false
	}
	return idx, true
}
