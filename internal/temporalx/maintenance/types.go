package maintenance

const (
	WorkflowName = "session_maintenance"

	ActivityGenerateUpcoming = "session_generate_upcoming"
	ActivitySweepOverdue     = "session_sweep_overdue"
	ActivityCompleteDue      = "schedule_complete_due"
)

// PassResult summarizes one maintenance pass.
type PassResult struct {
	Generated   int64 `json:"generated"`
	Missed      int   `json:"missed"`
	Rescheduled int   `json:"rescheduled"`
	Completed   int   `json:"completed"`
}

type GenerateResult struct {
	Created int64 `json:"created"`
}

type SweepResult struct {
	Missed      int `json:"missed"`
	Rescheduled int `json:"rescheduled"`
}

type CompleteResult struct {
	Completed int `json:"completed"`
}
