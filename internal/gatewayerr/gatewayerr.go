// Package gatewayerr defines the HTTP-facing error taxonomy shared by both
// gateways. Handlers translate any error returned by the translation,
// transport, or streaming layers into a status code by walking this
// taxonomy with errors.As, instead of matching on error strings.
package gatewayerr

import (
	"errors"
	"fmt"
	"net/http"
)

// ClientError is a 4xx returned verbatim to the caller: an unknown or
// disabled service tag, or a request missing a service tag entirely.
type ClientError struct {
	Status int // http.StatusBadRequest, http.StatusNotFound, http.StatusForbidden
	Msg    string
}

func (e *ClientError) Error() string { return e.Msg }

// UnknownService builds the 404 ClientError for an unrecognized service tag.
func UnknownService(tag string) error {
	return &ClientError{Status: http.StatusNotFound, Msg: fmt.Sprintf("unknown service %q", tag)}
}

// MissingService builds the 400 ClientError for a request with no
// extractable service tag (neither header nor body fallback).
func MissingService() error {
	return &ClientError{Status: http.StatusBadRequest, Msg: "missing inference-service and no model in body"}
}

// ServiceDisabled builds the 403 ClientError for a service tag that is
// configured but administratively disabled.
func ServiceDisabled(tag string) error {
	return &ClientError{Status: http.StatusForbidden, Msg: fmt.Sprintf("service %q is disabled", tag)}
}

// UpstreamTimeout is a 504: header parsing exceeded the configured read
// timeout before the status line and headers arrived.
type UpstreamTimeout struct{ Msg string }

func (e *UpstreamTimeout) Error() string { return e.Msg }

// UpstreamProtocol is a 502: the remote process exited (or the transport
// closed) before a complete header block arrived, or the status line was
// malformed.
type UpstreamProtocol struct{ Msg string }

func (e *UpstreamProtocol) Error() string { return e.Msg }

// UpstreamFailure is a 500: the cloud SDK call raised, or the remote
// process exited non-zero during the body phase.
type UpstreamFailure struct{ Msg string }

func (e *UpstreamFailure) Error() string { return e.Msg }

// StatusFor maps an error from this taxonomy to the HTTP status code that
// should be written, provided no response bytes have been sent yet. Errors
// outside the taxonomy map to 500.
func StatusFor(err error) int {
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return clientErr.Status
	}
	var timeoutErr *UpstreamTimeout
	if errors.As(err, &timeoutErr) {
		return http.StatusGatewayTimeout
	}
	var protoErr *UpstreamProtocol
	if errors.As(err, &protoErr) {
		return http.StatusBadGateway
	}
	var failErr *UpstreamFailure
	if errors.As(err, &failErr) {
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}
