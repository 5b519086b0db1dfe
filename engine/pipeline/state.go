package pipeline

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/compozy/vachanamrut/pkg/logger"
)

// Run states, in the order a successful run visits them.
const (
	StateContextPrep    = "context_prep"
	StateDetectLanguage = "detect_language"
	StateRoute          = "route"
	StateTranslate      = "translate"
	StateRewrite        = "rewrite"
	StateSearch         = "search"
	StateRerank         = "rerank"
	StateSynthesize     = "synthesize"
	StateDone           = "done"
	StateFailed         = "failed"
)

const (
	transitionDetect     = "detect"
	transitionRoute      = "route"
	transitionTranslate  = "translate"
	transitionRewrite    = "rewrite"
	transitionSearch     = "search"
	transitionRerank     = "rerank"
	transitionSynthesize = "synthesize"
	transitionFinish     = "finish"
	transitionFail       = "fail"
)

var activeStates = []string{
	StateContextPrep, StateDetectLanguage, StateRoute, StateTranslate,
	StateRewrite, StateSearch, StateRerank, StateSynthesize,
}

func runEvents() fsm.Events {
	return fsm.Events{
		{Name: transitionDetect, Src: []string{StateContextPrep}, Dst: StateDetectLanguage},
		{Name: transitionRoute, Src: []string{StateDetectLanguage}, Dst: StateRoute},
		{Name: transitionTranslate, Src: []string{StateRoute}, Dst: StateTranslate},
		{Name: transitionRewrite, Src: []string{StateRoute, StateTranslate}, Dst: StateRewrite},
		{Name: transitionSearch, Src: []string{StateRewrite}, Dst: StateSearch},
		{Name: transitionRerank, Src: []string{StateSearch}, Dst: StateRerank},
		{Name: transitionSynthesize, Src: []string{StateRerank}, Dst: StateSynthesize},
		{Name: transitionFinish, Src: []string{StateSearch, StateSynthesize}, Dst: StateDone},
		{Name: transitionFail, Src: activeStates, Dst: StateFailed},
	}
}

// runState tracks a run's progress through the stage order. Transitions only
// move forward; an out-of-order transition is a bug and is logged.
type runState struct {
	machine *fsm.FSM
}

func newRunState() *runState {
	callbacks := fsm.Callbacks{
		"enter_state": func(ctx context.Context, e *fsm.Event) {
			logger.FromContext(ctx).Debug("Pipeline state", "from", e.Src, "to", e.Dst)
		},
	}
	return &runState{machine: fsm.NewFSM(StateContextPrep, runEvents(), callbacks)}
}

func (s *runState) transition(ctx context.Context, event string) {
	if err := s.machine.Event(ctx, event); err != nil {
		logger.FromContext(ctx).Error(
			"Invalid pipeline transition",
			"event", event,
			"state", s.machine.Current(),
			"error", err,
		)
	}
}

func (s *runState) current() string {
	return s.machine.Current()
}

func (s *runState) finished() bool {
	c := s.current()
	return c == StateDone || c == StateFailed
}
