package tapfiliate

import (
	"encoding/json"
	"fmt"
	"strings"

	stderr "affiliate-signup/internal/common/errors"
	commonhttp "affiliate-signup/internal/common/http"
	"affiliate-signup/internal/common/logger"
)

// Default messages when a failed response carries no usable text.
const (
	MsgCreateFailed   = "Failed to create affiliate"
	MsgEnrollFailed   = "Affiliate created but failed to enroll in program."
	MsgUpdateFailed   = "Failed to update affiliate"
	MsgFetchFailed    = "Failed to fetch affiliate"
	MsgParentFailed   = "Failed to set parent affiliate"
	MsgDeleteFailed   = "Failed to delete affiliate"
	MsgInvalidCreate  = "Invalid response from Tapfiliate API"
	maxLoggedBodySize = 1000
)

// Classify turns a non-2xx response into a StandardError. HTML pages are never
// echoed; JSON bodies contribute their errors[] or message text.
func Classify(resp *commonhttp.Response, defaultMessage string) *stderr.StandardError {
	body := logger.Truncate(string(resp.Body), maxLoggedBodySize)

	if resp.IsHTML() {
		return stderr.NewUpstreamHTMLError(resp.StatusCode, body)
	}

	var parsed interface{}
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		e := stderr.NewUpstreamBusinessError(stderr.MsgGeneric, resp.StatusCode)
		e.Details = body
		return e
	}

	message := defaultMessage
	if obj, ok := parsed.(map[string]interface{}); ok {
		if msg := errorsText(obj["errors"]); msg != "" {
			message = msg
		} else if msg, ok := obj["message"].(string); ok && msg != "" {
			message = msg
		}
	}

	e := stderr.NewUpstreamBusinessError(message, resp.StatusCode)
	e.Details = body
	return e
}

// errorsText joins an errors[] array, preferring each entry's message.
func errorsText(v interface{}) string {
	list, ok := v.([]interface{})
	if !ok || len(list) == 0 {
		return ""
	}
	parts := make([]string, 0, len(list))
	for _, entry := range list {
		if m, ok := entry.(map[string]interface{}); ok {
			if msg, ok := m["message"].(string); ok && msg != "" {
				parts = append(parts, msg)
				continue
			}
			raw, _ := json.Marshal(m)
			parts = append(parts, string(raw))
			continue
		}
		parts = append(parts, fmt.Sprint(entry))
	}
	return strings.Join(parts, ", ")
}
