package model

import "time"

// Finding is the outcome of one preflight check.
type Finding struct {
	Check       string `json:"check"`
	Status      string `json:"status"`
	Severity    string `json:"severity"`
	Remediation string `json:"remediation,omitempty"`
}

// PreflightReport collects the findings for one command.
type PreflightReport struct {
	Command  string    `json:"command"`
	Findings []Finding `json:"findings"`
}

// Blocking returns the failed blocking findings.
func (r *PreflightReport) Blocking() []Finding {
	return r.filter(SeverityBlocking)
}

// Advisory returns the failed advisory findings.
func (r *PreflightReport) Advisory() []Finding {
	return r.filter(SeverityAdvisory)
}

// OK reports whether no blocking finding failed.
func (r *PreflightReport) OK() bool {
	return len(r.Blocking()) == 0
}

func (r *PreflightReport) filter(severity string) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Status == CheckMissing && f.Severity == severity {
			out = append(out, f)
		}
	}
	return out
}

// OperationResult is the outcome of one driver call.
type OperationResult struct {
	Step      string    `json:"step"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Output    string    `json:"output,omitempty"`
	Err       error     `json:"-"`
}

// Applied returns an applied result.
func Applied(step, detail string) OperationResult {
	return OperationResult{Step: step, Status: StatusApplied, Detail: detail}
}

// Skipped returns a skipped result.
func Skipped(step, detail string) OperationResult {
	return OperationResult{Step: step, Status: StatusSkipped, Detail: detail}
}

// Failed returns a failed result carrying the error kind of err.
func Failed(step string, err error) OperationResult {
	return OperationResult{
		Step:      step,
		Status:    StatusFailed,
		Detail:    err.Error(),
		ErrorKind: KindOf(err),
		Err:       err,
	}
}

// ExecutionReport aggregates the results of one invocation.
type ExecutionReport struct {
	RunID        string            `json:"run_id"`
	Command      string            `json:"command"`
	Target       string            `json:"target,omitempty"`
	DryRun       bool              `json:"dry_run"`
	Plan         *InstallPlan      `json:"plan"`
	Preflight    *PreflightReport  `json:"preflight,omitempty"`
	Results      []OperationResult `json:"results"`
	NotAttempted []string          `json:"not_attempted,omitempty"`
	UndoHints    []string          `json:"undo_hints,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   time.Time         `json:"finished_at"`
}

// Completed returns the names of steps whose result is applied or skipped.
func (r *ExecutionReport) Completed() []string {
	var out []string
	for _, res := range r.Results {
		if res.Status != StatusFailed {
			out = append(out, res.Step)
		}
	}
	return out
}

// Failure returns the first failed result, if any.
func (r *ExecutionReport) Failure() (OperationResult, bool) {
	for _, res := range r.Results {
		if res.Status == StatusFailed {
			return res, true
		}
	}
	return OperationResult{}, false
}

// LockWaitState describes an in-progress wait for the package manager lock.
type LockWaitState struct {
	HolderPID    int           `json:"holder_pid,omitempty"`
	HolderCmd    string        `json:"holder_cmd,omitempty"`
	Path         string        `json:"path,omitempty"`
	Remaining    time.Duration `json:"remaining"`
	PollInterval time.Duration `json:"poll_interval"`
}
