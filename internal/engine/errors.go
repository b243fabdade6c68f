package engine

import (
	"errors"
	"fmt"
)

// Common coordination errors
var (
	// ErrUnknownVoice indicates a voice name that is not in the catalog
	ErrUnknownVoice = errors.New("unknown voice")

	// ErrInvalidEngineFilter indicates an engine filter that is neither "ALL" nor a known engine
	ErrInvalidEngineFilter = errors.New("invalid engine filter")

	// ErrNoVoices indicates that no engine activated or no voice was enumerated
	ErrNoVoices = errors.New("no synthesis engine offers any voice")

	// ErrTerminated indicates an operation on a terminated registry
	ErrTerminated = errors.New("voice manager terminated")

	// ErrWorkerStopped indicates a submission after the playback worker stopped
	ErrWorkerStopped = errors.New("playback worker stopped")

	// ErrEngineOff indicates a request to an engine that is not activated
	ErrEngineOff = errors.New("engine not activated")
)

// Kind classifies a coordination failure.
type Kind string

const (
	// KindUnavailableEngine: a capability failed Ready or EngineOn.
	KindUnavailableEngine Kind = "UNAVAILABLE_ENGINE"
	// KindUnknownVoice: lookup by a name that is not in the catalog.
	KindUnknownVoice Kind = "UNKNOWN_VOICE"
	// KindInvalidEngineFilter: bad engine filter tag.
	KindInvalidEngineFilter Kind = "INVALID_ENGINE_FILTER"
	// KindHookInstallFailure: the device hook could not be installed.
	KindHookInstallFailure Kind = "HOOK_INSTALL_FAILURE"
	// KindSpuriousCallback: begin/end with no outstanding utterance.
	KindSpuriousCallback Kind = "SPURIOUS_CALLBACK"
	// KindWorkerTaskFailure: dispatching one queued task failed.
	KindWorkerTaskFailure Kind = "WORKER_TASK_FAILURE"
)

// Error is a coordination error with a kind and optional context.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Context map[string]interface{}
}

// NewError creates a new coordination error.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind, so errors.Is(err, &Error{Kind: k}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	e.Context[key] = value
	return e
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Unavailable wraps an activation failure for the given engine.
func Unavailable(tag Tag, cause error) *Error {
	return NewError(KindUnavailableEngine, fmt.Sprintf("engine %s unavailable", tag), cause).
		WithContext("engine", string(tag))
}

// HookFailure wraps a device hook installation failure for the given library.
func HookFailure(libPath string, cause error) *Error {
	return NewError(KindHookInstallFailure, fmt.Sprintf("could not hook audio device calls in %s", libPath), cause).
		WithContext("library", libPath)
}
