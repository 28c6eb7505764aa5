// Package errs defines the error kind taxonomy shared across the core. Every
// error that crosses a component boundary is classified into one of the
// kinds below so that callers — the router in particular — can decide how to
// react without inspecting error strings.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error by its origin and recovery policy.
type Kind int

// The error kinds recognized by the core.
const (
	// KindPlatformFetch marks a failure fetching updates from the messaging
	// platform. Recovery: logged, treated as an empty batch.
	KindPlatformFetch Kind = iota

	// KindPlatformSend marks a failure sending a reply to the messaging
	// platform. Recovery: retried with backoff, then dropped.
	KindPlatformSend

	// KindOffsetIO marks a failure reading or writing the offset file.
	// Recovery: logged; load failures fall back to no offset.
	KindOffsetIO

	// KindManifestParse marks a failure parsing one plugin manifest.
	// Recovery: that plugin is skipped; the scan continues.
	KindManifestParse

	// KindCommandNotFound marks a command with no matching plugin.
	KindCommandNotFound

	// KindPluginTimeout marks a tools/call that exceeded its deadline.
	// Recovery: retried up to the manifest's max_retries.
	KindPluginTimeout

	// KindPluginTransport marks a transport-level session failure.
	// Recovery: session marked Broken, retried, reopened on next use.
	KindPluginTransport

	// KindPluginApplicationError marks an error returned by the plugin
	// itself (JSON-RPC error object or {data,error} content). Recovery:
	// surfaced verbatim to the user, no retry.
	KindPluginApplicationError

	// KindConfigurationError marks a fatal startup configuration problem.
	KindConfigurationError

	// KindShutdown marks a request that failed because the owning
	// component was shutting down.
	KindShutdown
)

// String returns a lower_snake_case name for k, suitable for log fields.
func (k Kind) String() string {
	switch k {
	case KindPlatformFetch:
		return "platform_fetch"
	case KindPlatformSend:
		return "platform_send"
	case KindOffsetIO:
		return "offset_io"
	case KindManifestParse:
		return "manifest_parse"
	case KindCommandNotFound:
		return "command_not_found"
	case KindPluginTimeout:
		return "plugin_timeout"
	case KindPluginTransport:
		return "plugin_transport"
	case KindPluginApplicationError:
		return "plugin_application_error"
	case KindConfigurationError:
		return "configuration_error"
	case KindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Error is the error type carrying a Kind alongside the usual wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// New returns an *Error of the given kind with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an *Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}

	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind, allowing
// errors.Is(err, errs.New(KindPluginTimeout, "")) style checks against just
// the kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}

	return false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, and false
// otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}

	return 0, false
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)

	return ok && k == kind
}
