package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/evlinhq/evlin-backend/internal/data/repos"
	"github.com/evlinhq/evlin-backend/internal/data/testutil"
	types "github.com/evlinhq/evlin-backend/internal/domain"
	apperrors "github.com/evlinhq/evlin-backend/internal/pkg/errors"
	"github.com/evlinhq/evlin-backend/internal/platform/genai"
	"github.com/evlinhq/evlin-backend/internal/services"
)

// scriptedModel plays back canned results and records every history it was
// handed, so tests can assert on the exact wire turns the loop produced.
type scriptedModel struct {
	responses []*genai.Result
	histories [][]genai.Content
	calls     int
}

func (m *scriptedModel) GenerateContent(_ context.Context, _ string, history []genai.Content, _ []genai.FunctionDeclaration) (*genai.Result, error) {
	snapshot := make([]genai.Content, len(history))
	copy(snapshot, history)
	m.histories = append(m.histories, snapshot)

	var res *genai.Result
	if m.calls < len(m.responses) {
		res = m.responses[m.calls]
	} else {
		res = m.responses[len(m.responses)-1]
	}
	m.calls++
	return res, nil
}

func textResult(text string) *genai.Result {
	return &genai.Result{Text: text, FinishReason: "STOP"}
}

func callResult(name string, args map[string]any) *genai.Result {
	return &genai.Result{FunctionCalls: []genai.FunctionCall{{Name: name, Args: args}}}
}

type loopEnv struct {
	loop          *Loop
	model         *scriptedModel
	student       *types.Student
	conversations repos.ConversationRepo
}

func newLoopEnv(t *testing.T, model *scriptedModel) *loopEnv {
	t.Helper()

	db := testutil.DB(t)
	log := testutil.Logger(t)

	studentRepo := repos.NewStudentRepo(db, log)
	courseRepo := repos.NewCourseRepo(db, log)
	windowRepo := repos.NewAvailabilityRepo(db, log)
	scheduleRepo := repos.NewScheduleRepo(db, log)
	slotRepo := repos.NewScheduleSlotRepo(db, log)
	sessionRepo := repos.NewSessionInstanceRepo(db, log)
	ledgerRepo := repos.NewCheckinLogRepo(db, log)
	conversationRepo := repos.NewConversationRepo(db, log)

	availability := services.NewAvailabilityService(db, log, windowRepo)
	conflicts := services.NewConflictService(db, log, slotRepo, availability)
	prereqs := services.NewPrerequisiteService(db, log, scheduleRepo, nil)
	search := services.NewCourseSearchService(db, log, courseRepo, nil, nil)
	sessions := services.NewSessionService(db, log, scheduleRepo, sessionRepo, ledgerRepo, conflicts, availability)
	schedules := services.NewScheduleService(db, log, scheduleRepo, slotRepo, courseRepo, sessionRepo, ledgerRepo, conflicts, prereqs, sessions)

	registry := NewRegistry(availability, search, prereqs, conflicts, schedules, sessions)

	student := &types.Student{ID: uuid.New(), FirstName: "Remy", LastName: "Tester", GradeLevel: 6}
	if _, err := studentRepo.Create(context.Background(), nil, []*types.Student{student}); err != nil {
		t.Fatalf("create student: %v", err)
	}

	return &loopEnv{
		loop:          NewLoop(log, model, registry, studentRepo, conversationRepo),
		model:         model,
		student:       student,
		conversations: conversationRepo,
	}
}

func (e *loopEnv) turns(t *testing.T) []types.ConversationTurn {
	t.Helper()
	conv, err := e.conversations.GetOrCreate(context.Background(), nil, &e.student.ID, "scheduler")
	if err != nil {
		t.Fatalf("load conversation: %v", err)
	}
	var turns []types.ConversationTurn
	if len(conv.Messages) > 0 {
		if err := json.Unmarshal(conv.Messages, &turns); err != nil {
			t.Fatalf("decode turns: %v", err)
		}
	}
	return turns
}

func TestRunReturnsFinalTextAndPersists(t *testing.T) {
	model := &scriptedModel{responses: []*genai.Result{textResult("Tuesdays look open.")}}
	env := newLoopEnv(t, model)

	reply, err := env.loop.Run(context.Background(), env.student.ID, "When is Remy free?")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if reply != "Tuesdays look open." {
		t.Fatalf("reply: got=%q", reply)
	}

	turns := env.turns(t)
	if len(turns) != 2 {
		t.Fatalf("expected user+assistant turns, got %d", len(turns))
	}
	if turns[0].Role != types.TurnRoleUser || turns[1].Role != types.TurnRoleAssistant {
		t.Fatalf("unexpected roles: %+v", turns)
	}
}

func TestRunExecutesToolAndFeedsResultBack(t *testing.T) {
	model := &scriptedModel{}
	env := newLoopEnv(t, model)
	model.responses = []*genai.Result{
		callResult("get_student_availability", map[string]any{"student_id": env.student.ID.String()}),
		textResult("No availability declared yet."),
	}

	reply, err := env.loop.Run(context.Background(), env.student.ID, "When is Remy free?")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if reply != "No availability declared yet." {
		t.Fatalf("reply: got=%q", reply)
	}
	if model.calls != 2 {
		t.Fatalf("model calls: got=%d want=2", model.calls)
	}

	// The second model call must see the echoed call plus its response.
	second := model.histories[1]
	if len(second) != 3 {
		t.Fatalf("history length: got=%d want=3", len(second))
	}
	modelTurn := second[1]
	if modelTurn.Role != "model" || modelTurn.Parts[0].FunctionCall == nil {
		t.Fatalf("missing echoed tool call: %+v", modelTurn)
	}
	responseTurn := second[2]
	if responseTurn.Role != "user" || responseTurn.Parts[0].FunctionResponse == nil {
		t.Fatalf("missing function response: %+v", responseTurn)
	}
	payload := responseTurn.Parts[0].FunctionResponse.Response
	if _, hasErr := payload["error"]; hasErr {
		t.Fatalf("successful tool must not return an error payload: %v", payload)
	}

	turns := env.turns(t)
	var toolTurns int
	for _, turn := range turns {
		if turn.Role == types.TurnRoleTool {
			toolTurns++
			if turn.ToolName != "get_student_availability" {
				t.Fatalf("tool name: got=%q", turn.ToolName)
			}
			if turn.ToolResult == "" {
				t.Fatalf("tool turn missing result: %+v", turn)
			}
		}
	}
	if toolTurns != 1 {
		t.Fatalf("tool turns: got=%d want=1", toolTurns)
	}
}

func TestRunFeedsUnknownToolErrorBack(t *testing.T) {
	model := &scriptedModel{}
	env := newLoopEnv(t, model)
	model.responses = []*genai.Result{
		callResult("summon_tutor", map[string]any{}),
		textResult("I can't do that, but here is what I can do."),
	}

	reply, err := env.loop.Run(context.Background(), env.student.ID, "Summon a tutor")
	if err != nil {
		t.Fatalf("unknown tool must not fail the run: %v", err)
	}
	if reply != "I can't do that, but here is what I can do." {
		t.Fatalf("reply: got=%q", reply)
	}

	second := model.histories[1]
	payload := second[2].Parts[0].FunctionResponse.Response
	if _, hasErr := payload["error"]; !hasErr {
		t.Fatalf("unknown tool must produce an error payload: %v", payload)
	}

	turns := env.turns(t)
	var sawToolError bool
	for _, turn := range turns {
		if turn.Role == types.TurnRoleTool && turn.ToolError != "" {
			sawToolError = true
		}
	}
	if !sawToolError {
		t.Fatal("tool error must be recorded in the turn log")
	}
}

func TestRunStopsAtTurnCeiling(t *testing.T) {
	t.Setenv("AGENT_MAX_TURNS", "3")

	model := &scriptedModel{responses: []*genai.Result{
		callResult("get_student_availability", map[string]any{"student_id": uuid.New().String()}),
	}}
	env := newLoopEnv(t, model)

	reply, err := env.loop.Run(context.Background(), env.student.ID, "Loop forever")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if reply != degradedReply {
		t.Fatalf("reply: got=%q want degraded reply", reply)
	}
	if model.calls != 3 {
		t.Fatalf("model calls: got=%d want=3", model.calls)
	}
}

func TestRunRejectsEmptyMessageAndUnknownStudent(t *testing.T) {
	model := &scriptedModel{responses: []*genai.Result{textResult("hi")}}
	env := newLoopEnv(t, model)

	if _, err := env.loop.Run(context.Background(), env.student.ID, ""); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Fatalf("empty message: got %v, want ErrInvalidArgument", err)
	}
	if _, err := env.loop.Run(context.Background(), uuid.New(), "hello"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("unknown student: got %v, want ErrNotFound", err)
	}
}
