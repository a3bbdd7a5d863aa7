package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/evlinhq/evlin-backend/internal/data/repos"
	types "github.com/evlinhq/evlin-backend/internal/domain"
	apperrors "github.com/evlinhq/evlin-backend/internal/pkg/errors"
	"github.com/evlinhq/evlin-backend/internal/platform/envutil"
	"github.com/evlinhq/evlin-backend/internal/platform/genai"
	"github.com/evlinhq/evlin-backend/internal/platform/logger"
)

const (
	agentTypeScheduler = "scheduler"

	degradedReply = "I couldn't complete that request within my working limit. Could you simplify it or try again?"
)

// Loop is the bounded tool-orchestration loop: strictly sequential per
// conversation, one model call or tool call pending at a time. Termination is
// either a final model answer or the maxTurns ceiling; cancellation is
// cooperative and checked at iteration boundaries only.
type Loop struct {
	log           *logger.Logger
	model         genai.Client
	registry      *Registry
	students      repos.StudentRepo
	conversations repos.ConversationRepo

	maxTurns int
}

func NewLoop(log *logger.Logger, model genai.Client, registry *Registry, students repos.StudentRepo, conversations repos.ConversationRepo) *Loop {
	return &Loop{
		log:           log.With("service", "AgentLoop"),
		model:         model,
		registry:      registry,
		students:      students,
		conversations: conversations,
		maxTurns:      envutil.Int("AGENT_MAX_TURNS", 10),
	}
}

// Run feeds one user message through the loop and returns the assistant's
// reply. The conversation for (student, agent type) is loaded, extended, and
// persisted append-only.
func (l *Loop) Run(ctx context.Context, studentID uuid.UUID, message string) (string, error) {
	if message == "" {
		return "", fmt.Errorf("empty message: %w", apperrors.ErrInvalidArgument)
	}

	var studentRef *uuid.UUID
	var student *types.Student
	if studentID != uuid.Nil {
		var err error
		student, err = l.students.GetByID(ctx, nil, studentID)
		if err != nil {
			return "", err
		}
		if student == nil {
			return "", fmt.Errorf("student %s: %w", studentID, apperrors.ErrNotFound)
		}
		studentRef = &studentID
	}

	conv, err := l.conversations.GetOrCreate(ctx, nil, studentRef, agentTypeScheduler)
	if err != nil {
		return "", err
	}

	history := l.rebuildHistory(conv)
	history = append(history, genai.Content{Role: "user", Parts: []genai.Part{{Text: message}}})

	newTurns := []types.ConversationTurn{{
		Role:    types.TurnRoleUser,
		Content: message,
		At:      time.Now().UTC(),
	}}

	system := systemPromptFor(student)
	declarations := l.registry.Declarations()

	reply := degradedReply
	for turn := 0; turn < l.maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		result, err := l.generate(ctx, system, history, declarations)
		if err != nil {
			return "", err
		}

		if !result.HasFunctionCalls() {
			reply = result.Text
			if reply == "" {
				reply = "I'm not sure how to help with that. Could you rephrase?"
			}
			newTurns = append(newTurns, types.ConversationTurn{
				Role:    types.TurnRoleAssistant,
				Content: reply,
				At:      time.Now().UTC(),
			})
			l.persist(ctx, conv.ID, newTurns)
			return reply, nil
		}

		// Echo the model's tool-call turn, then answer every call in one
		// user turn, exactly as the wire protocol expects.
		modelParts := make([]genai.Part, 0, len(result.FunctionCalls))
		responseParts := make([]genai.Part, 0, len(result.FunctionCalls))
		seen := map[string]bool{}
		for i := range result.FunctionCalls {
			call := result.FunctionCalls[i]
			modelParts = append(modelParts, genai.Part{FunctionCall: &call})

			var payload map[string]any
			if seen[call.Name] {
				// Same tool twice in one turn is never silently retried.
				payload = errorPayload(&apperrors.ToolInvocationError{
					Tool: call.Name, Reason: "duplicate invocation in one turn",
				})
			} else {
				seen[call.Name] = true
				payload = l.invoke(ctx, call)
			}

			responseParts = append(responseParts, genai.Part{
				FunctionResponse: &genai.FunctionResponse{Name: call.Name, Response: payload},
			})
			newTurns = append(newTurns, toolTurn(call, payload))
		}
		history = append(history,
			genai.Content{Role: "model", Parts: modelParts},
			genai.Content{Role: "user", Parts: responseParts},
		)
	}

	l.log.Warn("agent loop hit turn ceiling", "student_id", studentID, "max_turns", l.maxTurns)
	newTurns = append(newTurns, types.ConversationTurn{
		Role:    types.TurnRoleAssistant,
		Content: reply,
		At:      time.Now().UTC(),
	})
	l.persist(ctx, conv.ID, newTurns)
	return reply, nil
}

// generate calls the model, retrying once on a transient failure.
func (l *Loop) generate(ctx context.Context, system string, history []genai.Content, tools []genai.FunctionDeclaration) (*genai.Result, error) {
	result, err := l.model.GenerateContent(ctx, system, history, tools)
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	l.log.Warn("model call failed, retrying once", "error", err)
	return l.model.GenerateContent(ctx, system, history, tools)
}

// invoke executes one tool call. Tool failures become structured payloads fed
// back to the model; they are never raised to the caller.
func (l *Loop) invoke(ctx context.Context, call genai.FunctionCall) map[string]any {
	result, err := l.registry.Invoke(ctx, call.Name, call.Args)
	if err == nil {
		return result
	}

	var toolErr *apperrors.ToolInvocationError
	if errors.As(err, &toolErr) {
		l.log.Warn("tool invocation rejected", "tool", call.Name, "reason", toolErr.Reason)
	} else {
		l.log.Warn("tool execution failed", "tool", call.Name, "error", err)
	}
	return errorPayload(err)
}

func errorPayload(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}

func toolTurn(call genai.FunctionCall, payload map[string]any) types.ConversationTurn {
	turn := types.ConversationTurn{
		Role:     types.TurnRoleTool,
		ToolName: call.Name,
		ToolArgs: call.Args,
		At:       time.Now().UTC(),
	}
	if errMsg, ok := payload["error"].(string); ok && len(payload) == 1 {
		turn.ToolError = errMsg
		return turn
	}
	if raw, err := json.Marshal(payload); err == nil {
		turn.ToolResult = string(raw)
	}
	return turn
}

// rebuildHistory projects the persisted turn log back into wire contents.
// Tool turns are replayed as text summaries; the model only needs them for
// context, not protocol fidelity.
func (l *Loop) rebuildHistory(conv *types.AgentConversation) []genai.Content {
	out := []genai.Content{}
	if conv == nil || len(conv.Messages) == 0 {
		return out
	}
	var turns []types.ConversationTurn
	if err := json.Unmarshal(conv.Messages, &turns); err != nil {
		l.log.Warn("unreadable conversation history, starting fresh", "conversation_id", conv.ID, "error", err)
		return out
	}
	for _, t := range turns {
		switch t.Role {
		case types.TurnRoleUser:
			out = append(out, genai.Content{Role: "user", Parts: []genai.Part{{Text: t.Content}}})
		case types.TurnRoleAssistant:
			if t.Content != "" {
				out = append(out, genai.Content{Role: "model", Parts: []genai.Part{{Text: t.Content}}})
			}
		}
	}
	return out
}

func (l *Loop) persist(ctx context.Context, convID uuid.UUID, turns []types.ConversationTurn) {
	if _, err := l.conversations.AppendTurns(ctx, nil, convID, turns); err != nil {
		l.log.Error("persisting conversation turns failed", "conversation_id", convID, "error", err)
	}
}
