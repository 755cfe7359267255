// pkg/report/report.go
package report

import (
	"fmt"
	"strings"
)

// Section headings of the report document, in render order. All five must
// be present and non-empty for a report to be well-formed: unlike the state
// document's lenient parsing, report production is strict because the
// report is a contract for downstream consumers.
const (
	SectionPlan     = "Plan"
	SectionChanges  = "Changes made"
	SectionCommands = "Commands run"
	SectionResult   = "Result"
	SectionNext     = "Next"
)

// Change describes one modification made during an iteration.
type Change struct {
	Target      string
	Description string
}

// Outcome captures the validation result for the Result section.
type Outcome struct {
	Passed bool
	Notes  string
}

// Report is a complete iteration report. Construct with Build; a Report
// value obtained from Build always renders all five sections.
type Report struct {
	Plan     []string
	Changes  []Change
	Commands []string
	Result   Outcome
	Next     string
}

// MissingSectionError reports a report input with an empty section.
type MissingSectionError struct {
	Section string
}

func (e MissingSectionError) Error() string {
	return fmt.Sprintf("report section %q is missing or empty", e.Section)
}

// Build validates inputs and assembles a Report. Every section must be
// non-empty; the first empty one is reported and no partial report is
// produced.
func Build(plan []string, changes []Change, commands []string, result Outcome, next string) (*Report, error) {
	if len(nonEmpty(plan)) == 0 {
		return nil, MissingSectionError{Section: SectionPlan}
	}
	if len(changes) == 0 {
		return nil, MissingSectionError{Section: SectionChanges}
	}
	for _, c := range changes {
		if strings.TrimSpace(c.Target) == "" && strings.TrimSpace(c.Description) == "" {
			return nil, MissingSectionError{Section: SectionChanges}
		}
	}
	if len(nonEmpty(commands)) == 0 {
		return nil, MissingSectionError{Section: SectionCommands}
	}
	if strings.TrimSpace(result.Notes) == "" {
		return nil, MissingSectionError{Section: SectionResult}
	}
	if strings.TrimSpace(next) == "" {
		return nil, MissingSectionError{Section: SectionNext}
	}

	return &Report{
		Plan:     nonEmpty(plan),
		Changes:  changes,
		Commands: nonEmpty(commands),
		Result:   result,
		Next:     strings.TrimSpace(next),
	}, nil
}

// Render serializes the report with a fixed section order so identical
// inputs always produce byte-identical documents.
func (r *Report) Render() string {
	var b strings.Builder

	writeHeading(&b, SectionPlan)
	for _, step := range r.Plan {
		fmt.Fprintf(&b, "- %s\n", step)
	}

	writeHeading(&b, SectionChanges)
	for _, c := range r.Changes {
		switch {
		case strings.TrimSpace(c.Target) == "":
			fmt.Fprintf(&b, "- %s\n", c.Description)
		case strings.TrimSpace(c.Description) == "":
			fmt.Fprintf(&b, "- %s\n", c.Target)
		default:
			fmt.Fprintf(&b, "- %s: %s\n", c.Target, c.Description)
		}
	}

	writeHeading(&b, SectionCommands)
	for _, cmd := range r.Commands {
		fmt.Fprintf(&b, "- %s\n", cmd)
	}

	writeHeading(&b, SectionResult)
	passed := "no"
	if r.Result.Passed {
		passed = "yes"
	}
	fmt.Fprintf(&b, "passed: %s\n%s\n", passed, strings.TrimSpace(r.Result.Notes))

	writeHeading(&b, SectionNext)
	b.WriteString(r.Next)
	b.WriteString("\n")

	return b.String()
}

func writeHeading(b *strings.Builder, heading string) {
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString("# ")
	b.WriteString(heading)
	b.WriteString("\n")
}

func nonEmpty(items []string) []string {
	var out []string
	for _, item := range items {
		if strings.TrimSpace(item) != "" {
			out = append(out, strings.TrimSpace(item))
		}
	}
	return out
}
