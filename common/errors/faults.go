// Package errors defines the fault taxonomy shared across the pipeline and
// its mapping to HTTP responses at the API boundary.
package errors

import (
	"errors"
	"fmt"
)

// DeserializationError reports a frame whose payload could not be decoded.
// It carries the type tag and the raw bytes for diagnostics. Fatal to the
// record; the consumer loop treats it as a stop condition.
type DeserializationError struct {
	Tag byte
	Raw []byte
	Err error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("deserialize frame (tag=%d, %d bytes): %v", e.Tag, len(e.Raw), e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// SequenceGapError reports a tradeId discontinuity detected by candle
// aggregation. Fatal to the consumer instance: the series would be wrong if
// processing continued.
type SequenceGapError struct {
	ProductID   string
	Granularity int64
	Expected    int64
	Actual      int64
}

func (e *SequenceGapError) Error() string {
	return fmt.Sprintf("trade sequence gap for %s/%dm: expected tradeId %d, got %d",
		e.ProductID, e.Granularity, e.Expected, e.Actual)
}

// StateConflictError reports an operation applied to an entity in the wrong
// state, e.g. approving a withdrawal that is not PENDING.
type StateConflictError struct {
	Entity string
	ID     string
	State  string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("%s %s is in state %s", e.Entity, e.ID, e.State)
}

// ValidationError reports invalid caller input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ExternalServiceError wraps a blockchain collaborator failure. Caught per
// item; the affected entity is left unchanged for retry on the next cycle.
type ExternalServiceError struct {
	Service string
	Op      string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// ErrNotFound marks lookups that matched nothing.
var ErrNotFound = errors.New("not found")

// IsFatal reports whether err must stop a consumer loop rather than be
// skipped. Deserialization faults and sequence gaps are data-integrity
// violations; everything else is local to one record's business validity.
func IsFatal(err error) bool {
	var de *DeserializationError
	var ge *SequenceGapError
	return errors.As(err, &de) || errors.As(err, &ge)
}
