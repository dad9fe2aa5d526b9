package errors

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// Quota header names. Reset is expressed in unix seconds.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// ResponseBody is the JSON envelope written for every denial.
type ResponseBody struct {
	Error ResponseError `json:"error"`
}

// ResponseError is the error object inside [ResponseBody].
type ResponseError struct {
	Kind    Kind   `json:"kind"`
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// SetQuotaHeaders writes the limit, remaining and reset headers for q.
func SetQuotaHeaders(h http.Header, q Quota) {
	h.Set(HeaderRateLimitLimit, strconv.FormatInt(q.Limit, 10))
	h.Set(HeaderRateLimitRemaining, strconv.FormatInt(q.Remaining, 10))
	h.Set(HeaderRateLimitReset, strconv.FormatInt(q.Reset.Unix(), 10))
}

// WriteHTTP renders err as a JSON error response. Errors outside the
// taxonomy are reported as internal errors without exposing their text.
// Rate-limit errors also get quota and Retry-After headers.
func WriteHTTP(w http.ResponseWriter, err error) {
	e, ok := AsError(err)
	if !ok {
		e = Internal("an unexpected error occurred")
	}

	if e.Quota != nil {
		SetQuotaHeaders(w.Header(), *e.Quota)
		if e.Code == CodeRateLimitExceeded {
			w.Header().Set(HeaderRetryAfter, strconv.FormatInt(e.Quota.RetryAfter(time.Now()), 10))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus())
	_ = json.NewEncoder(w).Encode(ResponseBody{Error: ResponseError{
		Kind:    e.Kind(),
		Code:    e.Code,
		Message: e.Message,
	}})
}
