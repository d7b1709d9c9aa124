package model

import (
	"time"

	"main/internal/model/enum"
)

// Command is one unit of work owned by the router. Callers keep only the ID
// for status lookup; the router is the single writer of all other fields.
type Command struct {
	ID          string
	Payload     []byte
	Priority    enum.Priority
	State       enum.CommandState
	Attempts    int
	SubmittedAt time.Time
	TerminalAt  time.Time
	LastErr     string
	Result      []byte
}

// CommandStatus is the caller-facing view of a command.
type CommandStatus struct {
	ID          string
	Priority    enum.Priority
	State       enum.CommandState
	Attempts    int
	SubmittedAt time.Time
	TerminalAt  time.Time
	LastErr     string
	Result      []byte
}

// StatusView copies the externally visible fields of a command.
func (c *Command) StatusView() CommandStatus {
	view := CommandStatus{
		ID:          c.ID,
		Priority:    c.Priority,
		State:       c.State,
		Attempts:    c.Attempts,
		SubmittedAt: c.SubmittedAt,
		TerminalAt:  c.TerminalAt,
		LastErr:     c.LastErr,
	}
	if len(c.Result) != 0 {
		view.Result = append([]byte(nil), c.Result...)
	}
	return view
}
