package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/evlinhq/evlin-backend/internal/data/repos"
	types "github.com/evlinhq/evlin-backend/internal/domain"
	apperrors "github.com/evlinhq/evlin-backend/internal/pkg/errors"
	"github.com/evlinhq/evlin-backend/internal/pkg/timeutil"
	"github.com/evlinhq/evlin-backend/internal/platform/genai"
	"github.com/evlinhq/evlin-backend/internal/services"
)

// Tool is one callable operation: a wire declaration plus its handler. The
// registry is a closed set; the model can never reach outside it.
type Tool struct {
	Declaration genai.FunctionDeclaration
	Run         func(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Registry holds the fixed tool set offered to the model each turn.
type Registry struct {
	order []string
	tools map[string]*Tool
}

// Invoke validates the name and arguments, then executes the tool. An
// unknown name or malformed arguments return a ToolInvocationError, which the
// loop feeds back into the conversation rather than raising.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	tool, ok := r.tools[name]
	if !ok {
		return nil, &apperrors.ToolInvocationError{Tool: name, Reason: "unknown tool"}
	}
	return tool.Run(ctx, args)
}

// Declarations returns the tool declarations in registration order.
func (r *Registry) Declarations() []genai.FunctionDeclaration {
	out := make([]genai.FunctionDeclaration, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Declaration)
	}
	return out
}

func (r *Registry) register(t *Tool) {
	r.order = append(r.order, t.Declaration.Name)
	r.tools[t.Declaration.Name] = t
}

var validate = validator.New()

// decodeArgs round-trips the loose argument map through JSON into a typed
// struct and validates it against the tool's contract.
func decodeArgs(tool string, args map[string]any, into any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return &apperrors.ToolInvocationError{Tool: tool, Reason: "unreadable arguments"}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return &apperrors.ToolInvocationError{Tool: tool, Reason: fmt.Sprintf("malformed arguments: %v", err)}
	}
	if err := validate.Struct(into); err != nil {
		return &apperrors.ToolInvocationError{Tool: tool, Reason: fmt.Sprintf("invalid arguments: %v", err)}
	}
	return nil
}

type availabilityArgs struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
}

type searchArgs struct {
	Subject    string `json:"subject" validate:"omitempty"`
	GradeLevel int    `json:"grade_level" validate:"omitempty,min=1,max=12"`
	Difficulty string `json:"difficulty" validate:"omitempty,oneof=easy standard advanced honors"`
	Keyword    string `json:"keyword" validate:"omitempty"`
}

type prereqArgs struct {
	CourseCode string `json:"course_code" validate:"required"`
	StudentID  string `json:"student_id" validate:"required,uuid"`
}

type detectArgs struct {
	StudentID     string `json:"student_id" validate:"required,uuid"`
	ProposedDay   *int   `json:"proposed_day" validate:"required,min=0,max=6"`
	ProposedStart string `json:"proposed_start" validate:"required"`
	ProposedEnd   string `json:"proposed_end" validate:"required"`
}

type proposeSlotArg struct {
	DayOfWeek *int   `json:"day_of_week" validate:"required,min=0,max=6"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	Location  string `json:"location" validate:"omitempty"`
}

type proposeArgs struct {
	StudentID  string           `json:"student_id" validate:"required,uuid"`
	CourseCode string           `json:"course_code" validate:"required"`
	Slots      []proposeSlotArg `json:"slots" validate:"required,min=1,dive"`
	StartDate  string           `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
}

type scheduleArgs struct {
	ScheduleID string `json:"schedule_id" validate:"required,uuid"`
}

type pendingArgs struct {
	StudentID  string `json:"student_id" validate:"required,uuid"`
	TargetDate string `json:"target_date" validate:"omitempty,datetime=2006-01-02"`
}

type sessionArgs struct {
	SessionID string `json:"session_id" validate:"required,uuid"`
}

// NewRegistry wires every tool to the scheduling services. The declarations
// mirror the argument structs exactly, so a validation failure is always the
// model's mistake, never schema drift.
func NewRegistry(
	availability services.AvailabilityService,
	search services.CourseSearchService,
	prereqs services.PrerequisiteService,
	conflicts services.ConflictService,
	schedules services.ScheduleService,
	sessions services.SessionService,
) *Registry {
	r := &Registry{tools: map[string]*Tool{}}

	r.register(&Tool{
		Declaration: genai.FunctionDeclaration{
			Name:        "get_student_availability",
			Description: "Get the student's weekly availability windows organized by day, with available/preferred/avoid preferences.",
			Parameters: objectSchema(map[string]any{
				"student_id": stringProp("The student's UUID"),
			}, "student_id"),
		},
		Run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			var in availabilityArgs
			if err := decodeArgs("get_student_availability", args, &in); err != nil {
				return nil, err
			}
			windows, err := availability.ListAll(ctx, uuid.MustParse(in.StudentID))
			if err != nil {
				return nil, err
			}
			byDay := map[string][]map[string]any{}
			for _, w := range windows {
				day := timeutil.DayName(w.DayOfWeek)
				byDay[day] = append(byDay[day], map[string]any{
					"start_time": w.StartTime,
					"end_time":   w.EndTime,
					"preference": w.Preference,
				})
			}
			return map[string]any{"availability": byDay}, nil
		},
	})

	r.register(&Tool{
		Declaration: genai.FunctionDeclaration{
			Name:        "get_current_schedule",
			Description: "Get the student's active and proposed schedules with their courses and weekly time slots.",
			Parameters: objectSchema(map[string]any{
				"student_id": stringProp("The student's UUID"),
			}, "student_id"),
		},
		Run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			var in availabilityArgs
			if err := decodeArgs("get_current_schedule", args, &in); err != nil {
				return nil, err
			}
			list, err := schedules.ListForStudent(ctx, uuid.MustParse(in.StudentID),
				[]string{types.ScheduleActive, types.ScheduleProposed})
			if err != nil {
				return nil, err
			}
			out := make([]map[string]any, 0, len(list))
			for _, sch := range list {
				slots := make([]map[string]any, 0, len(sch.Slots))
				for _, slot := range sch.Slots {
					slots = append(slots, map[string]any{
						"day":        timeutil.DayName(slot.DayOfWeek),
						"start_time": slot.StartTime,
						"end_time":   slot.EndTime,
						"location":   slot.Location,
					})
				}
				entry := map[string]any{
					"schedule_id": sch.ID.String(),
					"status":      sch.Status,
					"start_date":  sch.StartDate.Format("2006-01-02"),
					"slots":       slots,
				}
				if sch.Course != nil {
					entry["course_code"] = sch.Course.Code
					entry["course_title"] = sch.Course.Title
				}
				out = append(out, entry)
			}
			return map[string]any{"schedules": out}, nil
		},
	})

	r.register(&Tool{
		Declaration: genai.FunctionDeclaration{
			Name:        "search_courses",
			Description: "Search the course catalog by subject, grade level, difficulty, or keyword.",
			Parameters: objectSchema(map[string]any{
				"subject":     stringProp("Filter by subject: Math, Science, English, History, Art, PE"),
				"grade_level": intProp("Filter by grade level (1-12)"),
				"difficulty":  stringProp("Filter by difficulty: easy, standard, advanced, honors"),
				"keyword":     stringProp("Keyword matched against title, description, code, and tags"),
			}),
		},
		Run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			var in searchArgs
			if err := decodeArgs("search_courses", args, &in); err != nil {
				return nil, err
			}
			courses, err := search.Search(ctx, repos.CourseFilter{
				Subject:    in.Subject,
				GradeLevel: in.GradeLevel,
				Difficulty: in.Difficulty,
				Keyword:    in.Keyword,
			})
			if err != nil {
				return nil, err
			}
			out := make([]map[string]any, 0, len(courses))
			for _, c := range courses {
				out = append(out, map[string]any{
					"code":           c.Code,
					"title":          c.Title,
					"subject":        c.Subject,
					"grade_range":    fmt.Sprintf("%d-%d", c.GradeLevelMin, c.GradeLevelMax),
					"difficulty":     c.Difficulty,
					"hours_per_week": c.HoursPerWeek,
					"duration_weeks": c.DurationWeeks,
					"prerequisites":  c.PrerequisiteCodes(),
					"description":    c.Description,
				})
			}
			return map[string]any{"courses": out, "count": len(out)}, nil
		},
	})

	r.register(&Tool{
		Declaration: genai.FunctionDeclaration{
			Name:        "check_prerequisites",
			Description: "Check whether the student has completed all prerequisites for a course.",
			Parameters: objectSchema(map[string]any{
				"course_code": stringProp("The course code to check (e.g. 'MATH-5B')"),
				"student_id":  stringProp("The student's UUID"),
			}, "course_code", "student_id"),
		},
		Run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			var in prereqArgs
			if err := decodeArgs("check_prerequisites", args, &in); err != nil {
				return nil, err
			}
			course, err := search.GetByCode(ctx, in.CourseCode)
			if err != nil {
				return nil, err
			}
			result, err := prereqs.PrerequisitesMet(ctx, uuid.MustParse(in.StudentID), course)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"met":     result.Met,
				"missing": result.Missing,
				"source":  result.Source,
			}, nil
		},
	})

	r.register(&Tool{
		Declaration: genai.FunctionDeclaration{
			Name:        "detect_conflicts",
			Description: "Check a proposed weekly time slot against the student's existing schedule and availability. Returns an ok/warn/reject verdict with any overlaps.",
			Parameters: objectSchema(map[string]any{
				"student_id":     stringProp("The student's UUID"),
				"proposed_day":   intProp("Day of week: 0=Monday through 6=Sunday"),
				"proposed_start": stringProp("Start time as HH:MM (e.g. '09:00')"),
				"proposed_end":   stringProp("End time as HH:MM (e.g. '10:30')"),
			}, "student_id", "proposed_day", "proposed_start", "proposed_end"),
		},
		Run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			var in detectArgs
			if err := decodeArgs("detect_conflicts", args, &in); err != nil {
				return nil, err
			}
			report, err := conflicts.Detect(ctx, uuid.MustParse(in.StudentID), services.CandidateSlot{
				DayOfWeek: *in.ProposedDay,
				StartTime: in.ProposedStart,
				EndTime:   in.ProposedEnd,
			})
			if err != nil {
				return nil, err
			}
			overlaps := make([]map[string]any, 0, len(report.Overlaps))
			for _, o := range report.Overlaps {
				overlaps = append(overlaps, map[string]any{
					"course_code":     o.CourseCode,
					"course_title":    o.CourseTitle,
					"schedule_status": o.ScheduleStatus,
					"start_time":      o.StartTime,
					"end_time":        o.EndTime,
				})
			}
			return map[string]any{
				"verdict":      report.Verdict,
				"availability": report.Availability,
				"overlaps":     overlaps,
			}, nil
		},
	})

	r.register(&Tool{
		Declaration: genai.FunctionDeclaration{
			Name:        "propose_schedule",
			Description: "Create a proposed schedule for the student. The parent must confirm it before it becomes active.",
			Parameters: objectSchema(map[string]any{
				"student_id":  stringProp("The student's UUID"),
				"course_code": stringProp("The course code (e.g. 'SCI-5A')"),
				"slots": map[string]any{
					"type":        "array",
					"description": "Weekly time slots for the course",
					"items": objectSchema(map[string]any{
						"day_of_week": intProp("0=Monday through 6=Sunday"),
						"start_time":  stringProp("HH:MM format"),
						"end_time":    stringProp("HH:MM format"),
						"location":    stringProp("Optional location, defaults to Home"),
					}, "day_of_week", "start_time", "end_time"),
				},
				"start_date": stringProp("Optional start date YYYY-MM-DD; snapped to the next Monday"),
			}, "student_id", "course_code", "slots"),
		},
		Run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			var in proposeArgs
			if err := decodeArgs("propose_schedule", args, &in); err != nil {
				return nil, err
			}
			input := services.ProposeInput{
				StudentID:  uuid.MustParse(in.StudentID),
				CourseCode: in.CourseCode,
			}
			if in.StartDate != "" {
				d, _ := time.Parse("2006-01-02", in.StartDate)
				input.StartDate = d
			}
			for _, slot := range in.Slots {
				input.Slots = append(input.Slots, services.SlotRequest{
					DayOfWeek: *slot.DayOfWeek,
					StartTime: slot.StartTime,
					EndTime:   slot.EndTime,
					Location:  slot.Location,
				})
			}
			sch, err := schedules.Propose(ctx, input)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"schedule_id": sch.ID.String(),
				"status":      sch.Status,
				"start_date":  sch.StartDate.Format("2006-01-02"),
				"message":     "Schedule proposed. Ask the parent to confirm before it becomes active.",
			}, nil
		},
	})

	r.register(&Tool{
		Declaration: genai.FunctionDeclaration{
			Name:        "confirm_schedule",
			Description: "Confirm a proposed schedule, making it active and generating its upcoming sessions. Only call when the parent explicitly agrees.",
			Parameters: objectSchema(map[string]any{
				"schedule_id": stringProp("The schedule UUID to confirm"),
			}, "schedule_id"),
		},
		Run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			var in scheduleArgs
			if err := decodeArgs("confirm_schedule", args, &in); err != nil {
				return nil, err
			}
			sch, err := schedules.Confirm(ctx, uuid.MustParse(in.ScheduleID))
			if err != nil {
				return nil, err
			}
			return map[string]any{"schedule_id": sch.ID.String(), "status": sch.Status}, nil
		},
	})

	r.register(&Tool{
		Declaration: genai.FunctionDeclaration{
			Name:        "cancel_schedule",
			Description: "Cancel a proposed or active schedule. Future pending sessions of an active schedule are cancelled too.",
			Parameters: objectSchema(map[string]any{
				"schedule_id": stringProp("The schedule UUID to cancel"),
			}, "schedule_id"),
		},
		Run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			var in scheduleArgs
			if err := decodeArgs("cancel_schedule", args, &in); err != nil {
				return nil, err
			}
			sch, err := schedules.Cancel(ctx, uuid.MustParse(in.ScheduleID), "agent")
			if err != nil {
				return nil, err
			}
			return map[string]any{"schedule_id": sch.ID.String(), "status": sch.Status}, nil
		},
	})

	r.register(&Tool{
		Declaration: genai.FunctionDeclaration{
			Name:        "get_pending_sessions",
			Description: "List the student's pending session instances, optionally for a single date.",
			Parameters: objectSchema(map[string]any{
				"student_id":  stringProp("The student's UUID"),
				"target_date": stringProp("Optional date YYYY-MM-DD; defaults to the next 7 days"),
			}, "student_id"),
		},
		Run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			var in pendingArgs
			if err := decodeArgs("get_pending_sessions", args, &in); err != nil {
				return nil, err
			}
			from := time.Now().UTC()
			to := from.AddDate(0, 0, 7)
			if in.TargetDate != "" {
				d, _ := time.Parse("2006-01-02", in.TargetDate)
				from, to = d, d
			}
			list, err := sessions.ListForStudent(ctx, uuid.MustParse(in.StudentID), from, to,
				[]string{types.SessionPending})
			if err != nil {
				return nil, err
			}
			out := make([]map[string]any, 0, len(list))
			for _, inst := range list {
				entry := map[string]any{
					"session_id": inst.ID.String(),
					"date":       inst.SessionDate.Format("2006-01-02"),
					"start_time": inst.StartTime,
					"end_time":   inst.EndTime,
				}
				if inst.Schedule != nil && inst.Schedule.Course != nil {
					entry["course_code"] = inst.Schedule.Course.Code
					entry["course_title"] = inst.Schedule.Course.Title
				}
				out = append(out, entry)
			}
			return map[string]any{"sessions": out, "count": len(out)}, nil
		},
	})

	r.register(&Tool{
		Declaration: genai.FunctionDeclaration{
			Name:        "check_in_session",
			Description: "Mark a pending session instance as completed (the student attended).",
			Parameters: objectSchema(map[string]any{
				"session_id": stringProp("The session instance UUID"),
			}, "session_id"),
		},
		Run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			var in sessionArgs
			if err := decodeArgs("check_in_session", args, &in); err != nil {
				return nil, err
			}
			inst, err := sessions.CheckIn(ctx, uuid.MustParse(in.SessionID), "agent", time.Now().UTC())
			if err != nil {
				return nil, err
			}
			return map[string]any{"session_id": inst.ID.String(), "status": inst.Status}, nil
		},
	})

	r.register(&Tool{
		Declaration: genai.FunctionDeclaration{
			Name:        "suggest_reschedule",
			Description: "Suggest conflict-free placements for a pending session that needs to move.",
			Parameters: objectSchema(map[string]any{
				"session_id": stringProp("The session instance UUID to move"),
			}, "session_id"),
		},
		Run: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			var in sessionArgs
			if err := decodeArgs("suggest_reschedule", args, &in); err != nil {
				return nil, err
			}
			suggestions, err := sessions.FindRescheduleSlots(ctx, uuid.MustParse(in.SessionID), 14, 3)
			if err != nil {
				return nil, err
			}
			out := make([]map[string]any, 0, len(suggestions))
			for _, sug := range suggestions {
				out = append(out, map[string]any{
					"date":       sug.Date.Format("2006-01-02"),
					"day":        timeutil.DayName(sug.DayOfWeek),
					"start_time": sug.StartTime,
					"end_time":   sug.EndTime,
				})
			}
			return map[string]any{"suggestions": out}, nil
		},
	})

	return r
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func intProp(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}
