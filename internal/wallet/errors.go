package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrUnauthorized matches any *APIError with status 401 or 403.
var ErrUnauthorized = errors.New("unauthorized")

const maxErrorBody = 4 << 10

// APIError is a non-2xx response from the wallet service. Message is the
// service's own wording and is safe to show to the user.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wallet api: %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized &&
		(e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden)
}

// Rejected reports whether the service refused the request itself, as
// opposed to failing to process it.
func (e *APIError) Rejected() bool {
	return e.Status >= 400 && e.Status < 500
}

// newAPIError reads the error message from resp, preferring a JSON
// {"message"} body, then a short plain text body, then the status text.
func newAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return apiErr
	}

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Message != "":
			apiErr.Message = payload.Message
		case payload.Error != "":
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	if text := strings.TrimSpace(string(body)); text != "" && !strings.HasPrefix(text, "<") {
		apiErr.Message = text
	}

	return apiErr
}
