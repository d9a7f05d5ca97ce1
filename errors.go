package downloader

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

var (
	ErrValidation        = errors.New("target is no longer valid")
	ErrConnection        = errors.New("connection failed")
	ErrUnsupportedDomain = errors.New("no extraction strategy supports this url")
	ErrRateLimit         = errors.New("rate limited")
	ErrUnknown           = errors.New("unknown error")
)

// ErrorKind classifies failures by how the pipeline reacts to them.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindValidation
	KindConnection
	KindUnsupportedDomain
	KindRateLimit
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConnection:
		return "connection"
	case KindUnsupportedDomain:
		return "unsupported domain"
	case KindRateLimit:
		return "rate limit"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindValidation:
		return ErrValidation
	case KindConnection:
		return ErrConnection
	case KindUnsupportedDomain:
		return ErrUnsupportedDomain
	case KindRateLimit:
		return ErrRateLimit
	default:
		return ErrUnknown
	}
}

// Error is a classified failure carrying the operation and url it happened on.
type Error struct {
	Kind ErrorKind
	Op   string
	URL  string
	Err  error
}

func NewError(kind ErrorKind, op string, url string, err error) *Error {
	return &Error{Kind: kind, Op: op, URL: url, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.URL != "" {
		b.WriteString(" ")
		b.WriteString(e.URL)
	}
	b.WriteString(": ")
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString(e.Kind.sentinel().Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrConnection) etc. match on the error kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// RateLimitError is returned by strategies calling quota-limited APIs.
type RateLimitError struct {
	Service string
	// QuotaExhausted is true when the allowance is used up for the period, rather than a temporary throttle.
	QuotaExhausted bool
	RetryAfter     time.Duration
}

func (e *RateLimitError) Error() string {
	if e.QuotaExhausted {
		return fmt.Sprintf("%s quota exhausted", e.Service)
	}
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s temporarily rate limited, retry after %s", e.Service, e.RetryAfter)
	}
	return fmt.Sprintf("%s temporarily rate limited", e.Service)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimit
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.Code)
}

// KindOf classifies any error returned by the pipeline's collaborators.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrUnsupportedDomain):
		return KindUnsupportedDomain
	case errors.Is(err, ErrRateLimit):
		return KindRateLimit
	case errors.Is(err, ErrConnection), isNetworkError(err):
		return KindConnection
	}
	var status *StatusError
	if errors.As(err, &status) && (status.Code >= 500 || status.Code == 429) {
		return KindConnection
	}
	return KindUnknown
}

// IsKind is a shortcut for KindOf(err) == kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// ClassifyTransport wraps a transport-level failure as a connection error, leaving other errors untouched.
func ClassifyTransport(op string, rawURL string, err error) error {
	if err == nil {
		return nil
	}
	if isNetworkError(err) {
		return NewError(KindConnection, op, rawURL, err)
	}
	return err
}

// Describe gives a short human-readable label for the failure.
func Describe(err error) string {
	var status *StatusError
	if errors.As(err, &status) {
		return fmt.Sprintf("HTTP %d", status.Code)
	}
	var limited *RateLimitError
	if errors.As(err, &limited) {
		return limited.Error()
	}
	switch KindOf(err) {
	case KindConnection:
		return "connection error"
	case KindValidation:
		return "target not valid"
	case KindUnsupportedDomain:
		return "unsupported domain"
	default:
		return "unknown error"
	}
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
