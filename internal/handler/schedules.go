package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"schoolboard/internal/schedule"
	"schoolboard/internal/school"
)

// ---------- Schedules ----------

type scheduleView struct {
	ClassName string                  `json:"className"`
	Exists    bool                    `json:"exists"`
	Periods   []schedule.ResolvedSlot `json:"periods"`
}

func (h *Handler) teacherNames(c *gin.Context) (map[string]string, bool) {
	names, err := h.staff.TeacherNames(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return names, true
}

func newScheduleView(g schedule.Grid, names map[string]string) scheduleView {
	return scheduleView{ClassName: g.ClassName, Exists: g.Exists, Periods: schedule.Resolve(g.Periods, names)}
}

func (h *Handler) GetSchedule(c *gin.Context) {
	g, err := h.schedules.LoadForClass(c.Request.Context(), c.Param("class"))
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

func (h *Handler) SaveSchedule(c *gin.Context) {
	var req struct {
		Periods []schedule.Slot `json:"periods"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	class := c.Param("class")
	if !school.IsClass(class) {
		h.fail(c, school.NewValidationError(school.FieldError{Field: "className", Error: "className must be one of Class 1 to Class 10"}))
		return
	}
	g, err := h.schedules.SaveForClass(c.Request.Context(), class, req.Periods)
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

func (h *Handler) ListSchedules(c *gin.Context) {
	all, err := h.schedules.Schedules(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	names, ok := h.teacherNames(c)
	if !ok {
		return
	}
	views := make([]scheduleView, 0, len(all))
	for _, cs := range all {
		views = append(views, newScheduleView(schedule.Grid{ClassName: cs.ClassName, Periods: cs.Periods, Exists: true}, names))
	}
	c.JSON(http.StatusOK, gin.H{"schedules": views})
}

func (h *Handler) ScheduleConflicts(c *gin.Context) {
	conflicts, err := h.schedules.Conflicts(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	names, ok := h.teacherNames(c)
	if !ok {
		return
	}
	type view struct {
		schedule.Conflict
		TeacherName string `json:"teacherName"`
	}
	out := make([]view, 0, len(conflicts))
	for _, cf := range conflicts {
		name, ok := names[cf.TeacherID]
		if !ok {
			name = schedule.Unassigned
		}
		out = append(out, view{Conflict: cf, TeacherName: name})
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": out})
}
