package directive

import (
	stderrors "errors"
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	ErrCodeNilHandler           = "NIL_HANDLER"
	ErrCodeInvalidHandler       = "INVALID_HANDLER"
	ErrCodeEmptyConfiguration   = "EMPTY_CONFIGURATION"
	ErrCodeRegistrationConflict = "REGISTRATION_CONFLICT"
	ErrCodeInvalidDirective     = "INVALID_DIRECTIVE"
	ErrCodeInvalidPolicy        = "INVALID_BLOCKING_POLICY"
	ErrCodeUnhandledDirective   = "UNHANDLED_DIRECTIVE"
	ErrCodeSequencerShutdown    = "SEQUENCER_SHUTDOWN"
	ErrCodeHandlerPanic         = "HANDLER_PANIC"
)

var (
	ErrNilHandler = errors.New("handler cannot be nil", errors.CategoryBadInput).
			WithTextCode(ErrCodeNilHandler)
	ErrInvalidHandler = errors.New("handler type must be comparable", errors.CategoryBadInput).
				WithTextCode(ErrCodeInvalidHandler)
	ErrEmptyConfiguration = errors.New("handler declares no directive types", errors.CategoryBadInput).
				WithTextCode(ErrCodeEmptyConfiguration)
	ErrRegistrationConflict = errors.New("directive type already owned by another handler", errors.CategoryConflict).
				WithTextCode(ErrCodeRegistrationConflict)
	ErrInvalidDirective = errors.New("invalid directive", errors.CategoryValidation).
				WithTextCode(ErrCodeInvalidDirective)
	ErrInvalidPolicy = errors.New("invalid blocking policy", errors.CategoryValidation).
				WithTextCode(ErrCodeInvalidPolicy)
	ErrUnhandledDirective = errors.New("no handler registered for directive type", errors.CategoryBadInput).
				WithTextCode(ErrCodeUnhandledDirective)
	ErrSequencerShutdown = errors.New("sequencer is shut down", errors.CategoryConflict).
				WithTextCode(ErrCodeSequencerShutdown)
	ErrHandlerPanic = errors.New("handler callback panicked", errors.CategoryHandler).
			WithTextCode(ErrCodeHandlerPanic)
)

// NewError clones base, optionally overriding its message and attaching a
// source error and metadata.
func NewError(base *errors.Error, message string, source error, metadata map[string]any) *errors.Error {
	if base == nil {
		base = ErrInvalidDirective
	}
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

// ErrorCode returns the text code of the first go-errors error in err's chain.
func ErrorCode(err error) string {
	var ge *errors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// HasCode reports whether err carries the given text code.
func HasCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}
