package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
)

// StatusCoder is implemented by errors that carry an HTTP-like status code,
// such as provider.APIError.
type StatusCoder interface {
	HTTPStatus() int
}

// retryableStatus lists the status codes that signal provider health
// problems: auth and billing, rate limiting and upstream outages.
var retryableStatus = map[int]bool{
	401: true,
	402: true,
	403: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// retryableSubstrings are matched case-insensitively against error messages
// from SDKs that do not expose a status code.
var retryableSubstrings = []string{
	"rate limit",
	"ratelimit",
	"too many requests",
	"quota",
	"billing",
	"insufficient",
	"credit",
	"unauthorized",
	"forbidden",
	"invalid api key",
	"authentication",
	"timeout",
	"timed out",
	"deadline exceeded",
	"service unavailable",
	"overloaded",
	"bad gateway",
	"gateway timeout",
	"internal server error",
	"connection refused",
	"connection reset",
	"no such host",
	"unexpected eof",
}

// IsRetryable reports whether err signals a provider-health problem that
// should mark a tier down. Errors that are not retryable are treated as
// request-local and do not affect the tier.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// A connection dropped mid-response.
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return retryableStatus[sc.HTTPStatus()]
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
