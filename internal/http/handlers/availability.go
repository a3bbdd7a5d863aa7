package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	types "github.com/evlinhq/evlin-backend/internal/domain"
	"github.com/evlinhq/evlin-backend/internal/http/response"
	"github.com/evlinhq/evlin-backend/internal/services"
)

type AvailabilityHandler struct {
	availability services.AvailabilityService
}

func NewAvailabilityHandler(availability services.AvailabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{availability: availability}
}

// Get returns the student's windows, optionally narrowed to ?day=N.
func (ah *AvailabilityHandler) Get(c *gin.Context) {
	studentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if dayStr := c.Query("day"); dayStr != "" {
		day, err := strconv.Atoi(dayStr)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
		windows, err := ah.availability.WindowsFor(c.Request.Context(), studentID, day)
		if err != nil {
			response.RespondServiceError(c, err)
			return
		}
		response.RespondOK(c, gin.H{"windows": windows})
		return
	}

	windows, err := ah.availability.ListAll(c.Request.Context(), studentID)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"windows": windows})
}

// Set replaces the student's declared windows wholesale.
func (ah *AvailabilityHandler) Set(c *gin.Context) {
	studentID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req struct {
		Windows []struct {
			DayOfWeek  int    `json:"day_of_week"`
			StartTime  string `json:"start_time"`
			EndTime    string `json:"end_time"`
			Preference string `json:"preference"`
		} `json:"windows"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	windows := make([]*types.AvailabilityWindow, 0, len(req.Windows))
	for _, w := range req.Windows {
		windows = append(windows, &types.AvailabilityWindow{
			StudentID:  studentID,
			DayOfWeek:  w.DayOfWeek,
			StartTime:  w.StartTime,
			EndTime:    w.EndTime,
			Preference: w.Preference,
		})
	}
	if err := ah.availability.SetWindows(c.Request.Context(), studentID, windows); err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"ok": true, "count": len(windows)})
}
