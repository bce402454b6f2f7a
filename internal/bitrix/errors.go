package bitrix

import (
	"errors"
	"fmt"
)

// ErrCall is the sentinel all REST call failures wrap, covering both
// transport errors and error responses from the portal.
var ErrCall = errors.New("bitrix api call failed")

// APIError carries the method and the Bitrix error payload of a failed call.
type APIError struct {
	Method      string
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("bitrix %s: %s: %s", e.Method, e.Code, e.Description)
	}
	return fmt.Sprintf("bitrix %s: %s", e.Method, e.Description)
}

func (e *APIError) Unwrap() error {
	return ErrCall
}
