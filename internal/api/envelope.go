package api

import (
	"github.com/danielgtaylor/huma/v2"
)

// envelopeVersion is bumped when the envelope shape changes. Clients check
// it before parsing the rest of the payload.
const envelopeVersion = 1

// Envelope is the wire shape of every JSON response.
type Envelope struct {
	V       int    `json:"v"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// EnvelopeTransformer wraps every huma response body in the shared envelope
// so success and error payloads have the same top-level structure.
func EnvelopeTransformer(_ huma.Context, status string, v any) (any, error) {
	if apiErr, ok := v.(*APIError); ok {
		return &Envelope{
			V:       envelopeVersion,
			Success: false,
			Error:   apiErr.Message,
			Code:    apiErr.Code,
			Details: apiErr.Details,
		}, nil
	}

	if len(status) > 0 && status[0] >= '4' {
		msg := "request failed"
		if err, ok := v.(error); ok {
			msg = err.Error()
		}
		return &Envelope{
			V:       envelopeVersion,
			Success: false,
			Error:   msg,
		}, nil
	}

	return &Envelope{
		V:       envelopeVersion,
		Success: true,
		Data:    v,
	}, nil
}
