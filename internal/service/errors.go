package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/MimeLyc/jobrelay/internal/dedup"
	"github.com/MimeLyc/jobrelay/pkg/log"
)

type ErrorType int

const (
	ErrFetch ErrorType = iota
	ErrPublish
	ErrStore
	ErrLock
	ErrConfig
	ErrLedger
	ErrValidation
	ErrFatalState
	ErrUnknown
)

type RelayError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *RelayError {
	return &RelayError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *RelayError {
	return &RelayError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *RelayError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ctxParts := make([]string, 0, len(keys))
		for _, k := range keys {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *RelayError) Unwrap() error {
	return e.Cause
}

func (e *RelayError) WithContext(key string, value any) *RelayError {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrFetch:
		return "Fetch"
	case ErrPublish:
		return "Publish"
	case ErrStore:
		return "Store"
	case ErrLock:
		return "Lock"
	case ErrConfig:
		return "Config"
	case ErrLedger:
		return "Ledger"
	case ErrValidation:
		return "Validation"
	case ErrFatalState:
		return "FatalState"
	default:
		return "Unknown"
	}
}

type ErrorHandler interface {
	Handle(err error) bool
	GetAdvice(err *RelayError) string
}

type DefaultErrorHandler struct{}

func NewDefaultErrorHandler() ErrorHandler {
	return &DefaultErrorHandler{}
}

// Handle logs err with advice. It reports whether err was a RelayError.
func (h *DefaultErrorHandler) Handle(err error) bool {
	var relayErr *RelayError
	if !errors.As(err, &relayErr) {
		log.Error("Unknown Error: %v", err)
		return false
	}

	advice := h.GetAdvice(relayErr)
	log.Error("Error Detail: %v\n advice: %s", err, advice)

	return true
}

// GetAdvice returns error handling advice
func (h *DefaultErrorHandler) GetAdvice(err *RelayError) string {
	switch err.Type {
	case ErrFetch:
		return "Please check that the feed file exists and holds a JSON array or JSON lines of postings"
	case ErrPublish:
		return "Please check that the outbox location is writable; unpublished postings are retried next run"
	case ErrStore:
		return "Please check free space and permissions of the store directory; the next run retries the save"
	case ErrLock:
		return "Another run holds the store lock; wait for it to finish or remove a stale process"
	case ErrConfig:
		return "Please check that configuration files or environment variables are set correctly"
	case ErrLedger:
		return "The run ledger is unavailable; dedup decisions are unaffected but history is incomplete"
	case ErrValidation:
		return "Please verify input parameters are correct"
	case ErrFatalState:
		return "The store file no longer matches memory; stop all runs and inspect the store directory"
	default:
		return "Please review detailed error information and check relevant configuration and files"
	}
}

func IsErrorType(err error, errorType ErrorType) bool {
	var relayErr *RelayError
	if errors.As(err, &relayErr) {
		return relayErr.Type == errorType
	}
	return false
}

func WrapError(err error, errorType ErrorType, message string) *RelayError {
	return NewErrorWithCause(errorType, message, err)
}

// wrapStoreError classifies a store save failure, keeping fatal ones fatal.
func wrapStoreError(err error) *RelayError {
	if dedup.IsFatal(err) {
		return WrapError(err, ErrFatalState, "active store verification failed")
	}
	return WrapError(err, ErrStore, "failed to save active store")
}

func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
