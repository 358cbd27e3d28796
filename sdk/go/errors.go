package hirelinesdk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const maxErrorBody = 1 << 20

// TransportError means the request never produced an HTTP response.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError wraps non-2xx responses. Message is the server-supplied reason, if any.
type APIError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// MalformedResponseError means a response body did not have the expected shape.
type MalformedResponseError struct {
	StatusCode int
	Err        error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response (status=%d): %v", e.StatusCode, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// CheckResponse returns an *APIError for any non-2xx response, consuming the body.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    errorMessage(b),
		Body:       string(b),
	}
}

// errorMessage pulls a human message out of {"error": ...}, {"message": ...} or {"detail": ...}.
func errorMessage(body []byte) string {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"error", "message", "detail"} {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
	}
	return ""
}

// DecodeJSON decodes the whole body into out.
func DecodeJSON(resp *http.Response, out any) error {
	_, err := decode(resp, out, false)
	return err
}

// DecodeOptionalJSON is DecodeJSON that tolerates an empty body. It reports whether anything was decoded.
func DecodeOptionalJSON(resp *http.Response, out any) (bool, error) {
	return decode(resp, out, true)
}

func decode(resp *http.Response, out any, optional bool) (bool, error) {
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, &MalformedResponseError{StatusCode: resp.StatusCode, Err: err}
	}
	if len(bytes.TrimSpace(b)) == 0 {
		if optional {
			return false, nil
		}
		return false, &MalformedResponseError{StatusCode: resp.StatusCode, Err: io.ErrUnexpectedEOF}
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, &MalformedResponseError{StatusCode: resp.StatusCode, Err: err}
	}
	return true, nil
}
