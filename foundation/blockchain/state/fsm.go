package state

import (
	"github.com/looplab/fsm"
)

// Set of lifecycle states for the node.
const (
	stateInit         = "INIT"
	stateStandby      = "STANDBY"
	stateConnected    = "CONNECTED_TO_CENTRAL"
	stateShuttingDown = "SHUTTING_DOWN"
)

// Set of events that move the node between states.
const (
	eventStart    = "start"
	eventJoin     = "join"
	eventShutdown = "shutdown"
)

// newFSM creates the lifecycle state machine. A node starts in standby and
// moves to connected once it joins a network through a bootstrap node.
// Shutting down is terminal.
func newFSM() *fsm.FSM {
	return fsm.NewFSM(
		stateInit,
		fsm.Events{
			{
				Name: eventStart,
				Src:  []string{stateInit},
				Dst:  stateStandby,
			},
			{
				Name: eventJoin,
				Src:  []string{stateStandby},
				Dst:  stateConnected,
			},
			{
				Name: eventShutdown,
				Src: []string{
					stateInit,
					stateStandby,
					stateConnected,
				},
				Dst: stateShuttingDown,
			},
		},
		fsm.Callbacks{},
	)
}
