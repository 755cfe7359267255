// pkg/loop/stage.go
package loop

import (
	"fmt"
	"slices"
)

// Stage represents where the controller is in the iteration lifecycle.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageLoading    Stage = "loading"
	StageWorking    Stage = "working"
	StageValidating Stage = "validating"
	StageDeciding   Stage = "deciding"
	StageReporting  Stage = "reporting"
	StagePersisting Stage = "persisting"
	StageStopped    Stage = "stopped"
)

// validStageTransitions defines allowed stage transitions. A completed
// iteration re-enters loading from persisting; any stage may stop.
var validStageTransitions = map[Stage][]Stage{
	StageIdle:       {StageLoading, StageStopped},
	StageLoading:    {StageWorking, StageStopped},
	StageWorking:    {StageValidating, StageStopped},
	StageValidating: {StageDeciding, StageStopped},
	StageDeciding:   {StageReporting, StageStopped},
	StageReporting:  {StagePersisting, StageStopped},
	StagePersisting: {StageLoading, StageStopped},
	StageStopped:    {}, // Terminal for the run
}

// CanTransitionTo checks if a transition from current to next is valid.
func (s Stage) CanTransitionTo(next Stage) bool {
	allowed, ok := validStageTransitions[s]
	if !ok {
		return false
	}
	return slices.Contains(allowed, next)
}

// String returns the stage name.
func (s Stage) String() string {
	return string(s)
}

// ErrInvalidStage is returned when a stage transition is not allowed.
type ErrInvalidStage struct {
	From Stage
	To   Stage
}

func (e ErrInvalidStage) Error() string {
	return fmt.Sprintf("invalid stage transition: %s -> %s", e.From, e.To)
}
