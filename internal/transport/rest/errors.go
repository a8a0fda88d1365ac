package rest

import "fmt"

// TransportError is a failed HTTP exchange: a non-2xx status, a network
// error, or a timed-out request (Status 0 when no response arrived).
type TransportError struct {
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: %v", e.Err)
	}
	return fmt.Sprintf("transport: unexpected status %d", e.Status)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is a 2xx response whose body does not match the expected
// envelope shape.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %s", e.Reason)
}

// ValidationError is a local precondition failure. It never reaches the
// network.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}
