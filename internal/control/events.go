package control

import (
	"fmt"

	"onionctl/internal/bridges"
	"onionctl/internal/reporting"
)

// BridgesSavedEvent is published after a bridge configuration has been persisted.
type BridgesSavedEvent struct {
	reporting.BaseEvent
	Config            bridges.BridgeConfig `json:"config"`
	ReconnectRequired bool                 `json:"reconnectRequired"`
}

func (e BridgesSavedEvent) String() string {
	if e.ReconnectRequired {
		return fmt.Sprintf("bridges saved (%s), reconnect to apply", e.Config.ActiveTransport)
	}
	return fmt.Sprintf("bridges saved (%s)", e.Config.ActiveTransport)
}

// LogSwitchedEvent is published when the tailed log source changes. Target is empty when
// tailing stopped.
type LogSwitchedEvent struct {
	reporting.BaseEvent
	Previous string `json:"previous,omitempty"`
	Target   string `json:"target,omitempty"`
}

func (e LogSwitchedEvent) String() string {
	if e.Target == "" {
		return "log tail stopped"
	}
	return "tailing " + e.Target
}

var (
	_ reporting.Event = (*BridgesSavedEvent)(nil)
	_ reporting.Event = (*LogSwitchedEvent)(nil)
)
