package workflow

import "errors"

var (
	// ErrUnknownInvoice is returned when the invoice id cannot be found
	ErrUnknownInvoice = errors.New("unknown invoice")

	// ErrUnknownWorkflow is returned when the workflow id cannot be found
	ErrUnknownWorkflow = errors.New("unknown workflow")

	// ErrInvalidAmount flags an invoice whose amount is missing, zero or not a
	// finite positive number; it never enters analysis
	ErrInvalidAmount = errors.New("invalid invoice amount")

	// ErrUnresolvedProvider flags an invoice whose provider cannot be resolved;
	// the workflow is quarantined rather than silently dropped
	ErrUnresolvedProvider = errors.New("unresolved provider")

	// ErrUnsupportedOverride is returned for an override verb the workflow
	// does not recognize
	ErrUnsupportedOverride = errors.New("unsupported override")
)
