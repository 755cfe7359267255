// pkg/loop/stage_test.go
package loop

import "testing"

func TestStageTransitions(t *testing.T) {
	tests := []struct {
		from    Stage
		to      Stage
		allowed bool
	}{
		{StageIdle, StageLoading, true},
		{StageLoading, StageWorking, true},
		{StageWorking, StageValidating, true},
		{StageValidating, StageDeciding, true},
		{StageDeciding, StageReporting, true},
		{StageReporting, StagePersisting, true},
		{StagePersisting, StageLoading, true},
		{StagePersisting, StageStopped, true},
		{StageValidating, StageStopped, true},
		{StageLoading, StageDeciding, false},
		{StageWorking, StageReporting, false},
		{StageStopped, StageLoading, false},
		{StageIdle, StagePersisting, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
			t.Errorf("%s -> %s: got %t, want %t", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestStageStoppedIsTerminal(t *testing.T) {
	for _, to := range []Stage{
		StageIdle, StageLoading, StageWorking, StageValidating,
		StageDeciding, StageReporting, StagePersisting,
	} {
		if StageStopped.CanTransitionTo(to) {
			t.Errorf("stopped must not transition to %s", to)
		}
	}
}

func TestErrInvalidStage(t *testing.T) {
	err := ErrInvalidStage{From: StageLoading, To: StageDeciding}
	want := "invalid stage transition: loading -> deciding"
	if err.Error() != want {
		t.Errorf("got %q want %q", err.Error(), want)
	}
}
