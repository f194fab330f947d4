package binance

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// APIError is a non-2xx response from Binance. Code and Message come from the
// {"code":-2015,"msg":"..."} body when Binance sends one.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       int64  `json:"code"`
	Message    string `json:"msg"`
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("binance API error (status %d, code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("binance API error (status %d): %s", e.StatusCode, e.Message)
}

func parseAPIError(resp *resty.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode()}
	if err := json.Unmarshal(resp.Body(), apiErr); err != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(resp.String())
	}
	if apiErr.Message == "" {
		apiErr.Message = resp.Status()
	}
	return apiErr
}
