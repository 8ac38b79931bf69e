package transport

import (
	"context"
	"errors"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Reconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	}
	return "unknown"
}

func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func parseConnectionState(name string) ConnectionState {
	switch name {
	case "connecting":
		return Connecting
	case "connected":
		return Connected
	case "reconnecting":
		return Reconnecting
	}
	return Disconnected
}

const (
	eventOpen           = "open"
	eventHandshake      = "handshake"
	eventConnectionLost = "connection_lost"
	eventRetry          = "retry"
	eventClose          = "close"
)

func newConnectionFSM(log *zap.Logger) *fsm.FSM {
	return fsm.NewFSM(
		Disconnected.String(),
		fsm.Events{
			{Name: eventOpen, Src: []string{Disconnected.String()}, Dst: Connecting.String()},
			{Name: eventHandshake, Src: []string{Connecting.String()}, Dst: Connected.String()},
			{Name: eventConnectionLost, Src: []string{Connecting.String(), Connected.String()}, Dst: Reconnecting.String()},
			{Name: eventRetry, Src: []string{Reconnecting.String()}, Dst: Connecting.String()},
			{Name: eventClose, Src: []string{Connecting.String(), Connected.String(), Reconnecting.String()}, Dst: Disconnected.String()},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Debug("Connection state changed", zap.String("from", e.Src), zap.String("to", e.Dst), zap.String("event", e.Event))
			},
		},
	)
}

// fire runs one transition. A transition that does not apply in the current
// state is not an error for the caller, it only means nothing changed.
func fire(ctx context.Context, machine *fsm.FSM, event string) (bool, error) {
	err := machine.Event(ctx, event)
	if err == nil {
		return true, nil
	}

	var noTransition fsm.NoTransitionError
	var invalidEvent fsm.InvalidEventError
	if errors.As(err, &noTransition) || errors.As(err, &invalidEvent) {
		return false, nil
	}
	return false, err
}
