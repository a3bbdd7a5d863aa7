package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/evlinhq/evlin-backend/internal/data/repos"
	"github.com/evlinhq/evlin-backend/internal/http/response"
	"github.com/evlinhq/evlin-backend/internal/services"
)

type CourseHandler struct {
	search services.CourseSearchService
}

func NewCourseHandler(search services.CourseSearchService) *CourseHandler {
	return &CourseHandler{search: search}
}

func (ch *CourseHandler) Search(c *gin.Context) {
	filter := repos.CourseFilter{
		Subject:    strings.TrimSpace(c.Query("subject")),
		Difficulty: strings.TrimSpace(c.Query("difficulty")),
		Keyword:    strings.TrimSpace(c.Query("q")),
	}
	if g := c.Query("grade_level"); g != "" {
		grade, err := strconv.Atoi(g)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
		filter.GradeLevel = grade
	}

	courses, err := ch.search.Search(c.Request.Context(), filter)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"courses": courses})
}

func (ch *CourseHandler) Get(c *gin.Context) {
	course, err := ch.search.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, course)
}

func (ch *CourseHandler) Related(c *gin.Context) {
	courses, err := ch.search.Related(c.Request.Context(), c.Param("code"))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"courses": courses})
}
