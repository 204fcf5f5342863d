// Package fault is the error taxonomy shared by the session controller,
// the adapters and the background loops. Every stage boundary converts a
// raw error into one of these kinds before deciding the next state.
package fault

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// Transient covers network and rate-limit failures of a provider
	// call. Retried once, then surfaced as a short audible cue.
	Transient Kind = iota

	// InvalidInput marks an empty or too-short recording. Discarded
	// silently, no API call, no cue.
	InvalidInput

	// SideEffect marks a failed domain action (mail send, photo, relay
	// push). Surfaced with a category-specific spoken message.
	SideEffect

	// Persistence marks an unavailable alarm/message store. Logged,
	// the background loop skips the tick.
	Persistence

	// Startup marks missing required credentials or config. Fatal.
	Startup
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case InvalidInput:
		return "invalid_input"
	case SideEffect:
		return "side_effect"
	case Persistence:
		return "persistence"
	case Startup:
		return "startup"
	}
	return "unknown"
}

// Fault wraps an error with its kind and an optional spoken apology.
type Fault struct {
	Kind Kind
	Say  string // spoken to the user when non-empty
	Err  error
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return f.Kind.String()
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

func New(kind Kind, err error) error {
	return &Fault{Kind: kind, Err: err}
}

// Spoken builds a fault that carries its own apology line.
func Spoken(kind Kind, say string, err error) error {
	return &Fault{Kind: kind, Say: say, Err: err}
}

func Transientf(format string, args ...any) error {
	return &Fault{Kind: Transient, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the kind of err. Untyped errors count as SideEffect,
// the safe default for anything a handler let through raw.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return SideEffect
}

// SayOf returns the apology attached to err, if any.
func SayOf(err error) string {
	var f *Fault
	if errors.As(err, &f) {
		return f.Say
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var f *Fault
	return errors.As(err, &f) && f.Kind == kind
}
