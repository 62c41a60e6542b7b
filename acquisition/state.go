package acquisition

import "fmt"

// State состояние контроллера.
type State int

const (
	StateIdle State = iota
	StateConfigured
	StateArmed
	StatePolling
	StateStopped
	StateFetched
	StateCleared
	StateClosed
)

var stateNames = map[State]string{
	StateIdle:       "idle",
	StateConfigured: "configured",
	StateArmed:      "armed",
	StatePolling:    "polling",
	StateStopped:    "stopped",
	StateFetched:    "fetched",
	StateCleared:    "cleared",
	StateClosed:     "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Допустимые переходы. В Closed можно перейти из любого состояния.
var transitions = map[State][]State{
	StateIdle:       {StateConfigured},
	StateConfigured: {StateArmed},
	StateArmed:      {StatePolling},
	StatePolling:    {StateStopped},
	StateStopped:    {StateFetched},
	StateFetched:    {StateCleared},
	StateCleared:    {StateArmed},
}

func canTransition(from, to State) bool {
	if to == StateClosed {
		return from != StateClosed
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition вызывается с захваченным c.mu.
func (c *Controller) transition(to State) error {
	if c.state == StateClosed {
		return ErrClosed
	}
	if c.failed != nil && to != StateClosed {
		return fmt.Errorf("%w: previous failure: %v", ErrInvalidState, c.failed)
	}
	if !canTransition(c.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, c.state, to)
	}
	c.log.Debugf("state %s -> %s", c.state, to)
	c.state = to
	return nil
}
