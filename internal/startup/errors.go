// Package startup classifies failures that stop vectorgate from serving.
//
// Every failure on the path from configuration loading to the HTTP listener
// is tagged with a Kind. The CLI logs the Kind and maps it to a distinct
// process exit code.
package startup

import (
	"errors"
	"fmt"
)

// Kind identifies the stage of the startup sequence that failed.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindConnectivity
	KindResourceCreation
	KindServerStartup
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindConnectivity:
		return "connectivity"
	case KindResourceCreation:
		return "resource_creation"
	case KindServerStartup:
		return "server_startup"
	default:
		return "unknown"
	}
}

// ExitCode is the process exit status reported for a failure of this kind.
func (k Kind) ExitCode() int {
	switch k {
	case KindConfig:
		return 2
	case KindConnectivity:
		return 3
	case KindResourceCreation:
		return 4
	case KindServerStartup:
		return 5
	default:
		return 1
	}
}

// Error is a startup failure tagged with its Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with kind. A nil err yields nil. If err already carries a
// Kind, that Kind is kept and op is only prepended to the message.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Kind
	}
	return KindUnknown
}

// ExitCode maps err to a process exit status. nil maps to 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return KindOf(err).ExitCode()
}
