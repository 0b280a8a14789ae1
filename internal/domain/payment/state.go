package payment

// State implements the state pattern for the payment lifecycle.
type State interface {
	Status() Status
	OnCaptured(outcome Status) (State, error)
	OnReconciled(reported Status) (State, error)
}

func stateOf(s Status) State {
	switch s {
	case StatusSuccess:
		return succeededState{}
	case StatusFailed:
		return failedState{}
	default:
		return pendingState{}
	}
}

func terminalState(s Status) (State, error) {
	switch s {
	case StatusSuccess:
		return succeededState{}, nil
	case StatusFailed:
		return failedState{}, nil
	default:
		return nil, ErrInvalidStatus
	}
}

type pendingState struct{}

func (pendingState) Status() Status { return StatusPending }

func (pendingState) OnCaptured(outcome Status) (State, error) {
	return terminalState(outcome)
}

func (pendingState) OnReconciled(reported Status) (State, error) {
	return terminalState(reported)
}

// succeededState is provisional until the inventory side confirms the deduction.
type succeededState struct{}

func (succeededState) Status() Status { return StatusSuccess }

func (succeededState) OnCaptured(Status) (State, error) {
	return nil, ErrInvalidStateTransition
}

func (succeededState) OnReconciled(reported Status) (State, error) {
	return terminalState(reported)
}

type failedState struct{}

func (failedState) Status() Status { return StatusFailed }

func (failedState) OnCaptured(Status) (State, error) {
	return nil, ErrInvalidStateTransition
}

func (failedState) OnReconciled(reported Status) (State, error) {
	switch reported {
	case StatusFailed:
		return failedState{}, nil
	case StatusSuccess:
		return nil, ErrInvalidStateTransition
	default:
		return nil, ErrInvalidStatus
	}
}
