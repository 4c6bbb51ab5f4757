package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/musicfp/internal/pipeline"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgProgressUpdate MsgKind = iota
	MsgRunComplete
)

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update pipeline.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// runOutcome is written by the run goroutine before it closes the progress channel.
type runOutcome struct {
	result *pipeline.RunResult
	err    error
}

// runCompleteMsg is the constructor for [MsgRunComplete]
func runCompleteMsg(outcome runOutcome) Msg {
	return Msg{kind: MsgRunComplete, data: outcome}
}
