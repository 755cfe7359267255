// pkg/validation/runnerlog.go
package validation

import (
	"regexp"
	"strconv"
	"strings"
)

// The runner transcript is a sequence of command blocks: a title line
// naming the command, followed by a fenced block with its captured output.
// A block fails when its title carries a FAIL or ERROR marker or a nonzero
// "exit N" suffix. Text outside fenced blocks that is not a title line is
// ignored.

var reExit = regexp.MustCompile(`(?i)\bexit(?:\s+code)?[:\s]+(-?\d+)\b`)

// ParseRunnerLog digests a runner transcript into a Result. It never fails;
// a transcript with no recognizable blocks yields a passing result with no
// checks, since the core only needs "did any captured block indicate
// failure" and the failing-check identities.
func ParseRunnerLog(text string) Result {
	result := Result{Passed: true, RawOutput: text}

	lines := strings.Split(text, "\n")
	var (
		fence   fenceState
		title   string
		failed  bool
		body    []string
		inBlock bool
		opened  bool
	)
	closeBlock := func() {
		// A command block only counts once its fenced output appeared;
		// stray prose between blocks never registers a check.
		if !inBlock || !opened {
			inBlock = false
			opened = false
			title = ""
			failed = false
			body = body[:0]
			return
		}
		if failed {
			result.Passed = false
			result.FailingChecks = append(result.FailingChecks, FailingCheck{
				Name:    title,
				Message: firstNonEmptyLine(body),
			})
		}
		inBlock = false
		opened = false
		title = ""
		failed = false
		body = body[:0]
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		wasInFence := fence.inFence
		isFenceLine := fence.processLine(trimmed) && (fence.inFence != wasInFence)

		switch {
		case isFenceLine && fence.inFence:
			if inBlock {
				opened = true
			}
			continue
		case isFenceLine && !fence.inFence:
			closeBlock()
		case fence.inFence:
			if inBlock {
				body = append(body, line)
			}
		default:
			if trimmed == "" {
				continue
			}
			// A non-fence, non-empty line outside a fence titles the next
			// block.
			title, failed = parseTitle(trimmed)
			inBlock = true
		}
	}
	closeBlock()

	return result
}

// parseTitle extracts the command name from a title line and reports
// whether the title marks the block as failing.
func parseTitle(line string) (string, bool) {
	name := strings.TrimSpace(strings.TrimLeft(line, "#*- "))
	failed := false

	upper := strings.ToUpper(name)
	if strings.Contains(upper, "FAIL") || strings.Contains(upper, "ERROR") {
		failed = true
	}
	if m := reExit.FindStringSubmatch(name); len(m) == 2 {
		if code, err := strconv.Atoi(m[1]); err == nil && code != 0 {
			failed = true
		}
		name = strings.TrimSpace(reExit.ReplaceAllString(name, ""))
	}

	// Strip a trailing status annotation, a dash or colon followed by a
	// FAIL/PASS marker, or a parenthesized "(ERROR)".
	for _, sep := range []string{"—", " - ", ":"} {
		if idx := strings.LastIndex(name, sep); idx > 0 {
			tail := strings.ToUpper(name[idx:])
			if strings.Contains(tail, "FAIL") || strings.Contains(tail, "ERROR") ||
				strings.Contains(tail, "PASS") || strings.Contains(tail, "OK") {
				name = strings.TrimSpace(name[:idx])
				break
			}
		}
	}
	name = strings.TrimSuffix(name, "(")
	name = strings.Trim(name, "()[] ")

	return name, failed
}

func firstNonEmptyLine(lines []string) string {
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// fenceState tracks fenced-block parsing. Closing fences must use the same
// character as the opener, be at least as long, and contain nothing else.
type fenceState struct {
	inFence   bool
	fenceChar byte
	fenceLen  int
}

func (f *fenceState) processLine(trimmed string) bool {
	if len(trimmed) < 3 {
		return f.inFence
	}

	if !f.inFence {
		if trimmed[0] == '`' || trimmed[0] == '~' {
			fenceChar := trimmed[0]
			fenceLen := countLeadingChars(trimmed, fenceChar)
			if fenceLen >= 3 {
				f.inFence = true
				f.fenceChar = fenceChar
				f.fenceLen = fenceLen
				return true
			}
		}
		return false
	}

	if trimmed[0] == f.fenceChar {
		count := countLeadingChars(trimmed, f.fenceChar)
		if count >= f.fenceLen && count == len(trimmed) {
			f.inFence = false
			f.fenceChar = 0
			f.fenceLen = 0
			return true
		}
	}
	return true
}

func countLeadingChars(s string, char byte) int {
	count := 0
	for count < len(s) && s[count] == char {
		count++
	}
	return count
}
