package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/evlinhq/evlin-backend/internal/agent"
	"github.com/evlinhq/evlin-backend/internal/http/response"
)

var errAssistantDisabled = errors.New("scheduling assistant is not configured")

type ChatHandler struct {
	loop *agent.Loop
}

func NewChatHandler(loop *agent.Loop) *ChatHandler {
	return &ChatHandler{loop: loop}
}

// Chat feeds one message through the scheduling assistant. student_id is
// optional; without it the assistant answers catalog-level questions only.
func (ch *ChatHandler) Chat(c *gin.Context) {
	if ch.loop == nil {
		response.RespondError(c, http.StatusServiceUnavailable, "assistant_disabled",
			errAssistantDisabled)
		return
	}

	var req struct {
		StudentID string `json:"student_id,omitempty"`
		Message   string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	studentID := uuid.Nil
	if s := strings.TrimSpace(req.StudentID); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
		studentID = id
	}

	reply, err := ch.loop.Run(c.Request.Context(), studentID, strings.TrimSpace(req.Message))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"reply": reply})
}
