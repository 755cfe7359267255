// pkg/state/state.go
package state

import "strings"

// Known section headings in the loop state document. Heading matching is
// case-insensitive; serialization always emits the canonical form.
const (
	SectionGoal            = "Goal"
	SectionCurrentTask     = "Current task"
	SectionConstraints     = "Constraints"
	SectionHistory         = "Iteration History"
	SectionStatus          = "Status"
	SectionFailureTracking = "Failure Tracking"
)

// LoopState is the persisted record of loop progress. Every field is always
// present; absent or malformed sections degrade to empty values.
type LoopState struct {
	Goal        string
	CurrentTask string
	Constraints string
	// History holds the Iteration History section verbatim. Entries are one
	// per line, newest last.
	History string
	Status  string

	// ConsecutiveFailures counts iterations in a row whose validation failed
	// with an identical failure signature.
	ConsecutiveFailures int
	// LastFailureSignature is the fingerprint of the most recent failing
	// validation, empty when the last validation passed.
	LastFailureSignature string

	// Extra preserves unrecognized sections in document order so a rewrite
	// passes them through unmodified.
	Extra []Section
}

// Section is an unrecognized heading and its content.
type Section struct {
	Heading string
	Content string
}

// HistoryEntries splits the history section into individual entries,
// skipping blank lines. Entries are ordered newest last.
func (s *LoopState) HistoryEntries() []string {
	if s == nil || strings.TrimSpace(s.History) == "" {
		return nil
	}
	var entries []string
	for _, line := range strings.Split(s.History, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		entries = append(entries, line)
	}
	return entries
}

// AppendHistory appends one entry to the history section.
func (s *LoopState) AppendHistory(entry string) {
	entry = strings.TrimRight(entry, "\n")
	if strings.TrimSpace(s.History) == "" {
		s.History = entry
		return
	}
	s.History = strings.TrimRight(s.History, "\n") + "\n" + entry
}

// TrimHistory keeps the newest max entries and returns the overflow,
// oldest first, for archiving. A max <= 0 disables trimming.
func (s *LoopState) TrimHistory(max int) []string {
	if max <= 0 {
		return nil
	}
	entries := s.HistoryEntries()
	if len(entries) <= max {
		return nil
	}
	overflow := entries[:len(entries)-max]
	s.History = strings.Join(entries[len(entries)-max:], "\n")
	return overflow
}
