package harness

// TraceEvent is one outcome, or one clock advance, in a scenario run.
type TraceEvent struct {
	Step      int    `json:"step"`
	Day       int    `json:"day"`
	Op        string `json:"op"`
	Dimension string `json:"dimension,omitempty"`
	Kind      string `json:"kind,omitempty"`
	Previous  string `json:"previous,omitempty"`
	Value     string `json:"value,omitempty"`
	Status    string `json:"status,omitempty"`

	// Change is the change type of the history entry written, if any.
	Change    string `json:"change,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// key is the "dimension:kind" form used by trace_order.
func (e TraceEvent) key() string {
	return e.Dimension + ":" + e.Kind
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all expect clauses and assertions match.
	Pass bool `json:"pass"`

	// Trace contains every event in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends an event to the trace.
func (r *Result) AddEvent(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
