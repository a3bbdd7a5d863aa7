package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/evlinhq/evlin-backend/internal/domain"
	"github.com/evlinhq/evlin-backend/internal/http/response"
	"github.com/evlinhq/evlin-backend/internal/services"
)

type StudentHandler struct {
	students services.StudentService
}

func NewStudentHandler(students services.StudentService) *StudentHandler {
	return &StudentHandler{students: students}
}

type studentRequest struct {
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	GradeLevel  int        `json:"grade_level"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	ParentName  string     `json:"parent_name,omitempty"`
	ParentEmail string     `json:"parent_email,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

func (sh *StudentHandler) Create(c *gin.Context) {
	var req studentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	student := &types.Student{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		GradeLevel:  req.GradeLevel,
		DateOfBirth: req.DateOfBirth,
		ParentName:  req.ParentName,
		ParentEmail: req.ParentEmail,
		Notes:       req.Notes,
	}
	created, err := sh.students.Create(c.Request.Context(), student)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondCreated(c, created)
}

func (sh *StudentHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	student, err := sh.students.GetByID(c.Request.Context(), id)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, student)
}

func (sh *StudentHandler) List(c *gin.Context) {
	students, err := sh.students.List(c.Request.Context())
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"students": students})
}

func (sh *StudentHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req studentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	student := &types.Student{
		ID:          id,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		GradeLevel:  req.GradeLevel,
		DateOfBirth: req.DateOfBirth,
		ParentName:  req.ParentName,
		ParentEmail: req.ParentEmail,
		Notes:       req.Notes,
	}
	updated, err := sh.students.Update(c.Request.Context(), student)
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, updated)
}

// parseIDParam reads a UUID path param, responding 400 itself on failure.
func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil || id == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return uuid.Nil, false
	}
	return id, true
}
