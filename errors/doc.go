// Package errors provides the error taxonomy for the energy monitoring core.
//
// # Overview
//
// Errors fall into three classes: Transient (temporary, retryable), Invalid
// (bad input, drop and move on) and Fatal (stop and escalate to an operator).
// The ingestion path maps onto these classes directly:
//
//   - ErrDecodeFailure, ErrUnrecognizedRoute: invalid, the message is dropped
//   - ErrStoreUnavailable: transient, the message is dropped (no retry queue)
//   - ErrTransport: transient, drives the connector into reconnection
//   - ErrReconnectExhausted: fatal, the connector gives up
//
// # Error Wrapping Pattern
//
// All wrapping follows the format:
//
//	"component.method: action failed: %w"
//
// Three wrappers set a classification explicitly:
//
//	errors.WrapTransient(err, "Component", "Method", "action")
//	errors.WrapInvalid(err, "Component", "Method", "action")
//	errors.WrapFatal(err, "Component", "Method", "action")
//
// Wrap preserves whatever classification the wrapped error already carries.
// StoreUnavailable and Transport wrap a backend error so that both the
// sentinel and the original cause stay reachable through errors.Is:
//
//	if err := store.Write(ctx, r); err != nil {
//	    if errors.Is(err, errors.ErrStoreUnavailable) {
//	        // drop the message
//	    }
//	}
//
// # Thread Safety
//
// Error variables are immutable and ClassifiedError values are safe to share
// across goroutines after creation.
package errors
