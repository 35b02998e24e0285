package state

import "time"

// Machine 驱动房间在各个游戏模式之间切换
type Machine interface {
	Change(to State)
	Current() State
}

// State is one game mode as seen by the machine.
type State interface {
	GetID() string
	OnEnter()
	OnExit()
	// OnUpdate is driven by the room ticker and reports whether it changed anything.
	OnUpdate(now time.Time) bool
	Allows(eventType string) bool
}

// ModeMachine is owned by a single room goroutine and is not safe for concurrent use.
// Every mode can be entered from every other mode. Changing to the state already
// current still runs OnExit and OnEnter.
type ModeMachine struct {
	current State
}

// NewModeMachine enters initial immediately.
func NewModeMachine(initial State) *ModeMachine {
	initial.OnEnter()
	return &ModeMachine{current: initial}
}

func (m *ModeMachine) Change(to State) {
	m.current.OnExit()
	m.current = to
	m.current.OnEnter()
}

func (m *ModeMachine) Current() State {
	return m.current
}
