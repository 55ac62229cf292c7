package tokensource

import (
	"fmt"
	"net/http"
)

// AuthError reports that the token endpoint answered with a non-success status.
type AuthError struct {
	StatusCode int
	// Body is the response body as text, empty when it could not be read.
	Body string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: oauth token request failed: %d %s - %s",
		e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// TransportError reports a failure to reach the token endpoint or to decode its answer.
type TransportError struct {
	// Op names the step that failed, e.g. "send" or "decode".
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("oauth token %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
