package domain

import (
	"errors"
	"fmt"
)

// Tipos de fallo del core. Los errores concretos envuelven uno de estos con %w.
var (
	ErrValidation = errors.New("validation fault")
	ErrIntegrity  = errors.New("integrity fault")
	ErrArithmetic = errors.New("arithmetic fault")
	ErrNotFound   = errors.New("not found")
)

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

func integrityf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrIntegrity}, args...)...)
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrNotFound}, args...)...)
}

// Arithmeticf builds an ErrArithmetic error. Storage adapters use it when a
// stored amount does not parse as a decimal.
func Arithmeticf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrArithmetic}, args...)...)
}

// Integrityf builds an ErrIntegrity error for adapters that detect corruption
// before the domain sees the record.
func Integrityf(format string, args ...any) error {
	return integrityf(format, args...)
}

// NotFoundf builds an ErrNotFound error.
func NotFoundf(format string, args ...any) error {
	return notFoundf(format, args...)
}

func withLeg(position int, err error) error {
	return fmt.Errorf("leg %c: %w", 'A'+rune(position), err)
}

// RecordFault is a record skipped during a batch pass (listing, reports).
type RecordFault struct {
	SetID string `json:"set_id"`
	Err   error  `json:"-"`
}

func (f RecordFault) Error() string {
	return fmt.Sprintf("set %s: %v", f.SetID, f.Err)
}

func (f RecordFault) Unwrap() error { return f.Err }

// Kind returns the fault kind label used in logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrIntegrity):
		return "integrity"
	case errors.Is(err, ErrArithmetic):
		return "arithmetic"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
