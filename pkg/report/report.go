package report

import (
	"encoding/json"
	"strings"
)

// Status is the result of one attempted step.
type Status int

const (
	Success Status = iota
	Failure
)

func (s Status) String() string {
	if s == Failure {
		return "failure"
	}
	return "success"
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StepOutcome is one attempted step. Text is what the report displays;
// Err keeps the classified error for failures.
type StepOutcome struct {
	Label  string `json:"label"`
	Status Status `json:"status"`
	Text   string `json:"text,omitempty"`
	Err    string `json:"error,omitempty"`
}

// Succeeded builds a successful step showing output. Empty output is
// replaced by the report's success marker when rendered.
func Succeeded(label, output string) StepOutcome {
	return StepOutcome{Label: label, Status: Success, Text: output}
}

// Failed builds a failed step showing the classified error.
func Failed(label string, err error) StepOutcome {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return StepOutcome{Label: label, Status: Failure, Text: "failed: " + msg, Err: msg}
}

// FailedAs builds a failed step with custom display text, e.g. "(unavailable)".
func FailedAs(label, display string, err error) StepOutcome {
	out := StepOutcome{Label: label, Status: Failure, Text: display}
	if err != nil {
		out.Err = err.Error()
	}
	return out
}

// Outcome classifies a finished report.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomePartial      Outcome = "partial"
	OutcomeFailed       Outcome = "failed"
	OutcomeRejected     Outcome = "rejected"
	OutcomeInstructions Outcome = "instructions"
)

// DefaultMarker stands in for empty successful output.
const DefaultMarker = "done"

// TruncatedMarker is appended to text cut by a display cap.
const TruncatedMarker = "(truncated)"

// Report is the ordered record of one operation. It is append-only while the
// operation runs and owned by whoever requested it.
type Report struct {
	Title     string
	Steps     []StepOutcome
	Notes     []string
	Footer    []string
	Sections  []*Report
	Rejection string
	Aborted   bool

	marker string
	limit  int
}

// New starts an empty report.
func New(title string) *Report {
	return &Report{Title: title, marker: DefaultMarker}
}

// Rejected builds a report for input refused before any call was issued.
func Rejected(title, reason string) *Report {
	r := New(title)
	r.Rejection = reason
	return r
}

// WithMarker sets the text shown for successful steps without output.
func (r *Report) WithMarker(marker string) *Report {
	r.marker = marker
	return r
}

// WithCap limits the displayed text of every later step to n bytes.
func (r *Report) WithCap(n int) *Report {
	r.limit = n
	return r
}

// Add appends a step outcome in execution order.
func (r *Report) Add(step StepOutcome) *Report {
	if r.limit > 0 {
		step.Text = Truncate(step.Text, r.limit)
	}
	r.Steps = append(r.Steps, step)
	return r
}

// AddNote appends descriptive text shown after the steps.
func (r *Report) AddNote(lines ...string) *Report {
	r.Notes = append(r.Notes, lines...)
	return r
}

// AddFooter appends fixed advisory text shown last.
func (r *Report) AddFooter(lines ...string) *Report {
	r.Footer = append(r.Footer, lines...)
	return r
}

// AddSection nests a complete report, rendered after this report's notes.
func (r *Report) AddSection(section *Report) *Report {
	if section != nil {
		r.Sections = append(r.Sections, section)
	}
	return r
}

// Abort marks the report as stopped between steps by cancellation.
func (r *Report) Abort(reason string) *Report {
	r.Aborted = true
	r.Footer = append(r.Footer, "Aborted: "+reason)
	return r
}

// FailedCount counts failed steps including nested sections.
func (r *Report) FailedCount() int {
	n := 0
	for _, s := range r.Steps {
		if s.Status == Failure {
			n++
		}
	}
	for _, sec := range r.Sections {
		n += sec.FailedCount()
	}
	return n
}

// StepCount counts steps including nested sections.
func (r *Report) StepCount() int {
	n := len(r.Steps)
	for _, sec := range r.Sections {
		n += sec.StepCount()
	}
	return n
}

// Outcome summarises the report.
func (r *Report) Outcome() Outcome {
	if r.Rejection != "" {
		return OutcomeRejected
	}
	total := r.StepCount()
	if total == 0 {
		return OutcomeInstructions
	}
	switch failed := r.FailedCount(); {
	case failed == 0:
		return OutcomeSuccess
	case failed == total:
		return OutcomeFailed
	default:
		return OutcomePartial
	}
}

// StepsJSON encodes the step records for storage.
func (r *Report) StepsJSON() string {
	steps := r.allSteps()
	if len(steps) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(steps)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func (r *Report) allSteps() []StepOutcome {
	steps := append([]StepOutcome(nil), r.Steps...)
	for _, sec := range r.Sections {
		steps = append(steps, sec.allSteps()...)
	}
	return steps
}

// Truncate cuts s to at most n bytes on a rune boundary and appends the
// truncation marker.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return strings.TrimRight(s[:cut], " \t\r\n") + "\n" + TruncatedMarker
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// FirstLines keeps the first n lines of s.
func FirstLines(s string, n int) string {
	if n <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[:n], "\n")
}
