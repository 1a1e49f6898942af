package move

import (
	"fmt"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
)

// State is where a move is in its lifecycle.
//
//	Idle → Planned → Materializing → Loading → Done
//
// Any state before Done may go to Failed. Done and Failed are terminal.
type State int

const (
	Idle State = iota
	Planned
	Materializing
	Loading
	Done
	Failed
)

var stateNames = [...]string{"idle", "planned", "materializing", "loading", "done", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool { return s == Done || s == Failed }

func (s State) canMoveTo(to State) bool {
	if s.Terminal() {
		return false
	}
	if to == Failed {
		return true
	}
	return to == s+1
}

// ErrBadTransition is returned for a transition the lifecycle forbids.
var ErrBadTransition = errors.New("move: invalid state transition")
