package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// ErrorKind tags a delivery failure so logs stay precise.
type ErrorKind string

const (
	KindTransport ErrorKind = "transport"
	KindIO        ErrorKind = "io"
	KindCanceled  ErrorKind = "canceled"
	KindUnknown   ErrorKind = "unknown"
)

func (k ErrorKind) String() string { return string(k) }

// DeliveryError is returned when no HTTP response could be obtained.
type DeliveryError struct {
	Kind    ErrorKind
	URL     string
	Message string
	Cause   error
}

func (e *DeliveryError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, fmt.Sprintf("delivery error (%s)", e.Kind))

	if e.URL != "" {
		parts = append(parts, e.URL)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *DeliveryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// KindOf returns the tag of a delivery failure, or "" for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return deliveryErr.Kind
	}

	return classify(err)
}

func classify(err error) ErrorKind {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}

	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return KindIO
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return KindTransport
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransport
	}

	return KindUnknown
}
