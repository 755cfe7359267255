// pkg/loop/mode.go
package loop

import "github.com/odvcencio/wiggum/pkg/validation"

// Mode is the operating mode of one iteration. It is computed once per
// iteration and carried as a typed value; it is never derived from free-text
// comparison.
type Mode string

const (
	// ModeEngineering fixes failing checks or continues stabilizing.
	ModeEngineering Mode = "ENGINEERING"
	// ModeCreative produces domain artifacts; only reachable when the most
	// recent validation passed.
	ModeCreative Mode = "CREATIVE"
	// ModeBlocked is terminal for the run: an identical failure has repeated
	// past the configured threshold and external intervention is required.
	ModeBlocked Mode = "BLOCKED"
)

// String returns the mode name.
func (m Mode) String() string {
	return string(m)
}

// DecisionInput carries everything DecideMode may consider. The decision is
// evaluated fresh each iteration, never cached.
type DecisionInput struct {
	// Result is the latest validation result.
	Result validation.Result
	// HasPendingTask reports whether creative task content is queued.
	HasPendingTask bool
	// ConsecutiveFailures is the updated count for this iteration.
	ConsecutiveFailures int
	// SignatureUnchanged reports whether this iteration's failure signature
	// matches the previous one.
	SignatureUnchanged bool
	// BlockedThreshold is the consecutive-failure count at which the loop
	// is considered stuck.
	BlockedThreshold int
}

// DecideMode maps the iteration's inputs to an operating mode:
// a repeated identical failure at the threshold blocks, any failure means
// engineering, a pass with queued creative work means creative, and absence
// of defined work defaults to engineering, never creative.
func DecideMode(in DecisionInput) Mode {
	if in.BlockedThreshold > 0 && in.SignatureUnchanged &&
		in.ConsecutiveFailures >= in.BlockedThreshold {
		return ModeBlocked
	}
	if !in.Result.Passed {
		return ModeEngineering
	}
	if in.HasPendingTask {
		return ModeCreative
	}
	return ModeEngineering
}
