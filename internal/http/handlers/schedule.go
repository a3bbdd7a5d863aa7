package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/evlinhq/evlin-backend/internal/http/response"
	"github.com/evlinhq/evlin-backend/internal/services"
)

type ScheduleHandler struct {
	schedules services.ScheduleService
	prereqs   services.PrerequisiteService
	conflicts services.ConflictService
	search    services.CourseSearchService
}

func NewScheduleHandler(
	schedules services.ScheduleService,
	prereqs services.PrerequisiteService,
	conflicts services.ConflictService,
	search services.CourseSearchService,
) *ScheduleHandler {
	return &ScheduleHandler{
		schedules: schedules,
		prereqs:   prereqs,
		conflicts: conflicts,
		search:    search,
	}
}

func (sh *ScheduleHandler) Propose(c *gin.Context) {
	studentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		CourseCode string                 `json:"course_code"`
		Slots      []services.SlotRequest `json:"slots"`
		StartDate  string                 `json:"start_date,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	in := services.ProposeInput{
		StudentID:  studentID,
		CourseCode: req.CourseCode,
		Slots:      req.Slots,
	}
	if req.StartDate != "" {
		start, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
		in.StartDate = start
	}

	schedule, err := sh.schedules.Propose(c.Request.Context(), in)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, schedule)
}

func (sh *ScheduleHandler) Confirm(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	schedule, err := sh.schedules.Confirm(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, schedule)
}

func (sh *ScheduleHandler) Cancel(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Actor string `json:"actor,omitempty"`
	}
	// Body is optional; an empty actor defaults to the household parent.
	_ = c.ShouldBindJSON(&req)
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		actor = "parent"
	}

	schedule, err := sh.schedules.Cancel(c.Request.Context(), id, actor)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, schedule)
}

func (sh *ScheduleHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	schedule, err := sh.schedules.GetByID(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, schedule)
}

func (sh *ScheduleHandler) ListForStudent(c *gin.Context) {
	studentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	statuses := splitStatuses(c.Query("status"))
	schedules, err := sh.schedules.ListForStudent(c.Request.Context(), studentID, statuses)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"schedules": schedules})
}

// CheckPrerequisites reports whether the student may enroll in the course,
// including which resolution strategy answered.
func (sh *ScheduleHandler) CheckPrerequisites(c *gin.Context) {
	studentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	course, err := sh.search.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	result, err := sh.prereqs.PrerequisitesMet(c.Request.Context(), studentID, course)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, result)
}

// CheckConflicts runs the detector for a candidate slot without writing
// anything.
func (sh *ScheduleHandler) CheckConflicts(c *gin.Context) {
	studentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var candidate services.CandidateSlot
	if err := c.ShouldBindJSON(&candidate); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	report, err := sh.conflicts.Detect(c.Request.Context(), studentID, candidate)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, report)
}

func splitStatuses(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
