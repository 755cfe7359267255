// pkg/state/parse.go
package state

import (
	"fmt"
	"strconv"
	"strings"
)

// canonical heading order for serialization.
var knownSections = []string{
	SectionGoal,
	SectionCurrentTask,
	SectionConstraints,
	SectionHistory,
	SectionStatus,
	SectionFailureTracking,
}

// Parse extracts a LoopState from a state document. It never fails: a
// section is introduced by a top-level heading line ("# Name") exactly
// matching a known section name case-insensitively, and its content runs
// until the next top-level heading or end of input, trimmed of surrounding
// whitespace. Unknown headings are preserved in Extra. Empty input yields a
// state with every field empty.
func Parse(text string) *LoopState {
	st := &LoopState{}
	for _, sec := range splitSections(text) {
		switch canonicalHeading(sec.Heading) {
		case SectionGoal:
			st.Goal = sec.Content
		case SectionCurrentTask:
			st.CurrentTask = sec.Content
		case SectionConstraints:
			st.Constraints = sec.Content
		case SectionHistory:
			st.History = sec.Content
		case SectionStatus:
			st.Status = sec.Content
		case SectionFailureTracking:
			st.ConsecutiveFailures, st.LastFailureSignature = parseFailureTracking(sec.Content)
		default:
			st.Extra = append(st.Extra, sec)
		}
	}
	return st
}

// Serialize renders a LoopState as a state document. Known sections are
// emitted in canonical order; empty known sections are emitted with empty
// content so the document structure stays stable across rewrites. Extra
// sections follow in their original order.
func Serialize(st *LoopState) string {
	if st == nil {
		st = &LoopState{}
	}
	var b strings.Builder
	writeSection(&b, SectionGoal, st.Goal)
	writeSection(&b, SectionCurrentTask, st.CurrentTask)
	writeSection(&b, SectionConstraints, st.Constraints)
	writeSection(&b, SectionHistory, st.History)
	writeSection(&b, SectionStatus, st.Status)
	writeSection(&b, SectionFailureTracking, renderFailureTracking(st))
	for _, sec := range st.Extra {
		writeSection(&b, sec.Heading, sec.Content)
	}
	return b.String()
}

func writeSection(b *strings.Builder, heading, content string) {
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString("# ")
	b.WriteString(heading)
	b.WriteString("\n")
	content = strings.TrimSpace(content)
	if content != "" {
		b.WriteString(content)
		b.WriteString("\n")
	}
}

func canonicalHeading(heading string) string {
	for _, known := range knownSections {
		if strings.EqualFold(strings.TrimSpace(heading), known) {
			return known
		}
	}
	return ""
}

// splitSections walks the document line by line. Content before the first
// heading is discarded, matching the original document contract.
func splitSections(text string) []Section {
	var (
		sections []Section
		heading  string
		body     []string
		started  bool
	)
	flush := func() {
		if !started {
			return
		}
		sections = append(sections, Section{
			Heading: heading,
			Content: strings.TrimSpace(strings.Join(body, "\n")),
		})
	}
	for _, line := range strings.Split(text, "\n") {
		if name, ok := headingName(line); ok {
			flush()
			heading = name
			body = body[:0]
			started = true
			continue
		}
		if started {
			body = append(body, line)
		}
	}
	flush()
	return sections
}

// headingName reports whether a line is a top-level heading ("# Name").
// Deeper headings ("##") are content, not section boundaries.
func headingName(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	if strings.HasPrefix(trimmed, "##") {
		return "", false
	}
	name := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
	if name == "" {
		return "", false
	}
	return name, true
}

// parseFailureTracking reads "count:" and "signature:" lines. Anything
// malformed degrades to zero values.
func parseFailureTracking(content string) (int, string) {
	var (
		count     int
		signature string
	)
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "count":
			if n, err := strconv.Atoi(value); err == nil && n >= 0 {
				count = n
			}
		case "signature":
			signature = value
		}
	}
	return count, signature
}

func renderFailureTracking(st *LoopState) string {
	if st.ConsecutiveFailures == 0 && st.LastFailureSignature == "" {
		return ""
	}
	out := fmt.Sprintf("count: %d", st.ConsecutiveFailures)
	if st.LastFailureSignature != "" {
		out += "\nsignature: " + st.LastFailureSignature
	}
	return out
}
