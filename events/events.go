package events

import (
	"context"
	"time"
)

type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// Change describes a document write that succeeded.
type Change struct {
	Kind    string    `json:"kind"`
	ID      string    `json:"id"`
	Action  Action    `json:"action"`
	Backend string    `json:"backend"`
	At      time.Time `json:"at"`
}

// Notifier announces document changes. Notify must not block the caller on
// delivery and never reports failures back to it.
type Notifier interface {
	Notify(ctx context.Context, change Change)
}

// Noop drops every change.
type Noop struct{}

func (Noop) Notify(context.Context, Change) {}
