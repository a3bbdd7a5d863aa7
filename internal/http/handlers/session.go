package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/evlinhq/evlin-backend/internal/http/response"
	"github.com/evlinhq/evlin-backend/internal/services"
)

type SessionHandler struct {
	sessions services.SessionService
}

func NewSessionHandler(sessions services.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// ListForStudent returns instances in [from, to], defaulting to the next two
// weeks. Optional ?status=pending,completed narrows by status.
func (sh *SessionHandler) ListForStudent(c *gin.Context) {
	studentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	now := time.Now().UTC()
	from := now
	to := now.AddDate(0, 0, 14)
	var err error
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse("2006-01-02", v); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse("2006-01-02", v); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}

	instances, err := sh.sessions.ListForStudent(c.Request.Context(), studentID, from, to, splitStatuses(c.Query("status")))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"sessions": instances})
}

func (sh *SessionHandler) CheckIn(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Actor string `json:"actor,omitempty"`
	}
	_ = c.ShouldBindJSON(&req)
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		actor = "parent"
	}

	instance, err := sh.sessions.CheckIn(c.Request.Context(), id, actor, time.Now().UTC())
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, instance)
}

func (sh *SessionHandler) Reschedule(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Date      string `json:"date"`
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
		Actor     string `json:"actor,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		actor = "parent"
	}

	replacement, err := sh.sessions.Reschedule(c.Request.Context(), id, date, req.StartTime, req.EndTime, actor)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, replacement)
}

func (sh *SessionHandler) Suggestions(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	daysAhead := 14
	limit := 5
	var err error
	if v := c.Query("days_ahead"); v != "" {
		if daysAhead, err = strconv.Atoi(v); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}

	suggestions, err := sh.sessions.FindRescheduleSlots(c.Request.Context(), id, daysAhead, limit)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"suggestions": suggestions})
}

func (sh *SessionHandler) Ledger(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	entries, err := sh.sessions.Ledger(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"entries": entries})
}
