package report

import "strings"

// Lines renders the body of the report, one entry per step in execution
// order, then notes, nested sections and the footer. A step whose text spans
// several lines stays one entry with its continuation lines indented.
func (r *Report) Lines() []string {
	if r.Rejection != "" {
		return []string{r.Rejection}
	}
	lines := make([]string, 0, len(r.Steps)+len(r.Notes)+len(r.Footer))
	for _, step := range r.Steps {
		lines = append(lines, r.stepLine(step))
	}
	lines = append(lines, r.Notes...)
	for _, sec := range r.Sections {
		lines = append(lines, "", sec.Render())
	}
	lines = append(lines, r.Footer...)
	return lines
}

// Render produces the final text: the title line followed by Lines.
func (r *Report) Render() string {
	var b strings.Builder
	b.WriteString(r.Title)
	for _, line := range r.Lines() {
		b.WriteByte('\n')
		b.WriteString(line)
	}
	return b.String()
}

func (r *Report) String() string { return r.Render() }

func (r *Report) stepLine(step StepOutcome) string {
	text := step.Text
	if step.Status == Success && strings.TrimSpace(text) == "" {
		text = r.marker
		if text == "" {
			text = DefaultMarker
		}
	}
	if strings.Contains(text, "\n") {
		text = "\n  " + strings.ReplaceAll(text, "\n", "\n  ")
		if step.Label == "" {
			return strings.TrimPrefix(text, "\n")
		}
		return step.Label + ":" + text
	}
	if step.Label == "" {
		return text
	}
	return step.Label + ": " + text
}
