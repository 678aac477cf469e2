// Package recovery decides what happens to a failure depending on who asked
// for the work: the page the user is looking at must surface its errors,
// speculative work must never.
package recovery

import "context"

type Strategy interface {
	OnError(ctx context.Context, err error, location Location) Action
}

// Location describes where a failure happened.
type Location struct {
	Source    string
	Page      int
	Component string
}

type Action int

const (
	ActionFail Action = iota
	ActionSkip
	ActionWarn
)

func (a Action) String() string {
	switch a {
	case ActionFail:
		return "fail"
	case ActionSkip:
		return "skip"
	case ActionWarn:
		return "warn"
	}
	return "unknown"
}
