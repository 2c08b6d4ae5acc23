package smartapi

import (
	"fmt"
	"net/http"
	"strings"
)

// Vendor error codes embedded in 200 responses.
const (
	codeRateLimited = "AB1004" // vendor "something went wrong, try after some time"
	codeTokenError  = "AG8001" // invalid token
)

// VendorError is the structured failure surfaced when the upstream cannot be
// served, retries included. It never panics past the client boundary.
type VendorError struct {
	StatusCode int
	Code       string
	Message    string
	Transient  bool
}

func (e *VendorError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("smartapi: %s (%s, http %d)", e.Message, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("smartapi: %s (http %d)", e.Message, e.StatusCode)
}

// exhausted builds the degraded terminal failure after the attempt budget is
// spent.
func exhausted(last *VendorError) *VendorError {
	code := ""
	status := 0
	if last != nil {
		code = last.Code
		status = last.StatusCode
	}
	return &VendorError{StatusCode: status, Code: code, Message: "FAILED"}
}

// transientStatus reports whether an HTTP status warrants a backed-off retry.
func transientStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// authStatus reports whether an HTTP status indicates a credential problem.
func authStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// authBody reports whether a 200 body signals an authentication problem: the
// vendor flips status=false and mentions the token or session in the message.
func authBody(ok bool, code, message string) bool {
	if ok {
		return false
	}
	if code == codeTokenError {
		return true
	}
	m := strings.ToLower(message)
	for _, kw := range []string{"token", "session", "expired", "invalid jwt", "unauthor"} {
		if strings.Contains(m, kw) {
			return true
		}
	}
	return false
}

// transientBody reports whether a 200 body carries the vendor's temporary
// error code.
func transientBody(ok bool, code string) bool {
	return !ok && code == codeRateLimited
}
