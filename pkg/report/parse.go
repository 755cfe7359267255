// pkg/report/parse.go
package report

import (
	"strings"
)

// requiredHeadings lists every heading a valid report document carries.
var requiredHeadings = []string{
	SectionPlan,
	SectionChanges,
	SectionCommands,
	SectionResult,
	SectionNext,
}

// Validate checks a report document for completeness. A reader that finds
// any of the five headings missing must treat the report as invalid.
func Validate(text string) error {
	sections := splitHeadings(text)
	for _, heading := range requiredHeadings {
		content, ok := sections[strings.ToLower(heading)]
		if !ok || strings.TrimSpace(content) == "" {
			return MissingSectionError{Section: heading}
		}
	}
	return nil
}

// Parse reads a report document back into a Report. It enforces the same
// completeness contract as Build.
func Parse(text string) (*Report, error) {
	if err := Validate(text); err != nil {
		return nil, err
	}
	sections := splitHeadings(text)

	r := &Report{
		Plan:     parseList(sections[strings.ToLower(SectionPlan)]),
		Commands: parseList(sections[strings.ToLower(SectionCommands)]),
		Next:     strings.TrimSpace(sections[strings.ToLower(SectionNext)]),
	}
	for _, item := range parseList(sections[strings.ToLower(SectionChanges)]) {
		target, desc, ok := strings.Cut(item, ": ")
		if !ok {
			r.Changes = append(r.Changes, Change{Description: item})
			continue
		}
		r.Changes = append(r.Changes, Change{Target: target, Description: desc})
	}

	resultLines := strings.Split(strings.TrimSpace(sections[strings.ToLower(SectionResult)]), "\n")
	var notes []string
	for _, line := range resultLines {
		if value, ok := strings.CutPrefix(strings.TrimSpace(line), "passed:"); ok {
			r.Result.Passed = strings.TrimSpace(value) == "yes"
			continue
		}
		notes = append(notes, line)
	}
	r.Result.Notes = strings.TrimSpace(strings.Join(notes, "\n"))

	return r, nil
}

func parseList(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		out = append(out, strings.TrimSpace(strings.TrimPrefix(trimmed, "- ")))
	}
	return out
}

func splitHeadings(text string) map[string]string {
	sections := make(map[string]string)
	var (
		heading string
		body    []string
	)
	flush := func() {
		if heading == "" {
			return
		}
		sections[strings.ToLower(heading)] = strings.Join(body, "\n")
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			flush()
			heading = strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
			body = body[:0]
			continue
		}
		if heading != "" {
			body = append(body, line)
		}
	}
	flush()
	return sections
}
