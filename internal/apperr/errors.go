package apperr

import (
	"errors"
	"fmt"
)

// Kind classifica o erro para que camadas externas (HTTP, CLI, sweeps)
// possam distinguir cada caso sem comparar mensagens.
type Kind string

const (
	Validation          Kind = "VALIDATION"
	InsufficientFunds   Kind = "INSUFFICIENT_FUNDS"
	InvalidState        Kind = "INVALID_STATE"
	AlreadyFinalized    Kind = "ALREADY_FINALIZED"
	NotFound            Kind = "NOT_FOUND"
	CapacityExceeded    Kind = "CAPACITY_EXCEEDED"
	DuplicateRequest    Kind = "DUPLICATE_REQUEST"
	ExternalUnavailable Kind = "EXTERNAL_UNAVAILABLE"
	Internal            Kind = "INTERNAL"
)

// Sentinelas para uso com errors.Is.
var (
	ErrValidation          = &Error{Kind: Validation}
	ErrInsufficientFunds   = &Error{Kind: InsufficientFunds}
	ErrInvalidState        = &Error{Kind: InvalidState}
	ErrAlreadyFinalized    = &Error{Kind: AlreadyFinalized}
	ErrNotFound            = &Error{Kind: NotFound}
	ErrCapacityExceeded    = &Error{Kind: CapacityExceeded}
	ErrDuplicateRequest    = &Error{Kind: DuplicateRequest}
	ErrExternalUnavailable = &Error{Kind: ExternalUnavailable}
	ErrInternal            = &Error{Kind: Internal}
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s [%s]: %s -> %v", e.Kind, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is compara apenas o Kind, então errors.Is(err, ErrNotFound) funciona
// para qualquer erro NOT_FOUND, independente de Op ou mensagem.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Message: msg}
}

func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func NewInvalidInput(op, field string, value any) *Error {
	return Newf(Validation, op, "invalid %s: %v", field, value)
}

func NewNotFound(op, resource string) *Error {
	return Newf(NotFound, op, "%s not found", resource)
}

func NewInsufficientFunds(op string) *Error {
	return New(InsufficientFunds, op, "insufficient balance")
}

func NewInvalidState(op, resource string, state any) *Error {
	return Newf(InvalidState, op, "%s in state %v", resource, state)
}

func NewExternal(op string, err error) *Error {
	return &Error{Kind: ExternalUnavailable, Op: op, Message: "external collaborator unavailable", Err: err}
}

// WrapInternal preserva erros já classificados e embrulha o resto como INTERNAL.
func WrapInternal(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: Internal, Op: op, Message: "internal error", Err: err}
}

// KindOf devolve o Kind do primeiro *Error na cadeia, ou Internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}
