package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"schoolboard/internal/metrics"
	"schoolboard/internal/roster"
	"schoolboard/internal/school"
)

// ---------- Students ----------

// bindStudent reads a student from a JSON body or a multipart form whose
// optional "photo" file becomes the student's picture.
func bindStudent(c *gin.Context) (school.Student, *roster.Photo, bool) {
	var in school.Student
	if err := c.ShouldBind(&in); err != nil {
		badRequest(c, err.Error())
		return in, nil, false
	}
	name, data, ok, err := upload(c, "photo")
	if err != nil {
		badRequest(c, "failed to read photo")
		return in, nil, false
	}
	if !ok {
		return in, nil, true
	}
	return in, &roster.Photo{Filename: name, Data: data}, true
}

func (h *Handler) CreateStudent(c *gin.Context) {
	in, photo, ok := bindStudent(c)
	if !ok {
		return
	}
	st, err := h.roster.Create(c.Request.Context(), in, photo)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *Handler) ListStudents(c *gin.Context) {
	students, err := h.roster.List(c.Request.Context(), c.Query("class"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

func (h *Handler) GetStudent(c *gin.Context) {
	st, err := h.roster.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) UpdateStudent(c *gin.Context) {
	in, photo, ok := bindStudent(c)
	if !ok {
		return
	}
	st, err := h.roster.Update(c.Request.Context(), c.Param("id"), in, photo)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) DeleteStudent(c *gin.Context) {
	if err := h.roster.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) NextGRNo(c *gin.Context) {
	gr, err := h.roster.NextGRNo(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"grNo": gr})
}

// CheckNumbering lists the students a repair would renumber.
func (h *Handler) CheckNumbering(c *gin.Context) {
	pending, err := h.roster.Check(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]school.Student, 0, len(pending))
	for _, st := range pending {
		out = append(out, st.Public())
	}
	c.JSON(http.StatusOK, gin.H{"pending": out})
}

func (h *Handler) RepairNumbering(c *gin.Context) {
	n, err := h.roster.Repair(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"renumbered": n})
}

// StreamStudents pushes the (optionally class filtered) student list as
// server-sent events every time the roster changes.
func (h *Handler) StreamStudents(c *gin.Context) {
	updates, err := h.roster.Watch(c.Request.Context(), c.Query("class"))
	if err != nil {
		h.fail(c, err)
		return
	}
	metrics.FeedSubscribers.Inc()
	defer metrics.FeedSubscribers.Dec()

	c.Stream(func(w io.Writer) bool {
		students, ok := <-updates
		if !ok {
			return false
		}
		c.SSEvent("students", students)
		return true
	})
}
