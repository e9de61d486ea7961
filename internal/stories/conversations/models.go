package conversations

import (
	"errors"
	"time"
)

// ErrCorruptState marks a stored conversation that no longer decodes into a valid state.
var ErrCorruptState = errors.New("corrupt conversation state")

// Context is the first level of a conversation address.
type Context string

const (
	ContextIdle       Context = "idle"
	ContextOnboarding Context = "onboarding"
	ContextPurchase   Context = "purchase"
	ContextRenewal    Context = "renewal"
	ContextErrorMenu  Context = "error-menu"
)

// Step is the second level, scoped to a Context.
type Step string

const (
	StepMenu              Step = "menu"
	StepCollectName       Step = "collect-name"
	StepChooseUsername    Step = "choose-username"
	StepChooseConnections Step = "choose-connections"
	StepChooseDuration    Step = "choose-duration"
	StepChooseAccount     Step = "choose-account"
	StepConfirm           Step = "confirm"
	StepChooseOption      Step = "choose-option"
)

// validSteps lists the steps each context accepts.
var validSteps = map[Context][]Step{
	ContextIdle:       {StepMenu},
	ContextOnboarding: {StepCollectName},
	ContextPurchase:   {StepChooseUsername, StepChooseConnections, StepChooseDuration, StepConfirm},
	ContextRenewal:    {StepChooseAccount, StepChooseDuration, StepConfirm},
	ContextErrorMenu:  {StepChooseOption},
}

// Valid reports whether step belongs to context.
func Valid(c Context, s Step) bool {
	for _, step := range validSteps[c] {
		if step == s {
			return true
		}
	}
	return false
}

// State is the single conversation row kept per phone.
type State struct {
	Phone     string
	Context   Context
	Step      Step
	Scratch   Scratch
	UpdatedAt time.Time
}

// Idle is the resting state with no scratch data.
func Idle(phone string) State {
	return State{Phone: phone, Context: ContextIdle, Step: StepMenu, Scratch: Empty{}}
}

// Addr renders the (context, step) pair for logs and metrics.
func (s State) Addr() string {
	return string(s.Context) + "/" + string(s.Step)
}
