// Package message defines the two messages exchanged with the printer.
//
// A Request names a remote method and carries a fresh correlation ID. The
// printer answers with a Response echoing that ID together with an open
// Parameters mapping. Both travel as JSON inside a protocol frame.
package message

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is embedded in every request. There is no negotiation.
const ProtocolVersion = 1

// Known method names.
const (
	MethodGetStatus = "PROTOCOL_METHOD_GET_STATUS"
)

// Request is one outbound call.
//
// ID is assigned by NewRequest and must not be changed afterwards: the
// response is matched against it.
type Request struct {
	Method  string `json:"Method"`
	ID      ID     `json:"Id"`
	Version int    `json:"Version"`
}

// NewRequest builds a request for method with a fresh ID.
func NewRequest(method string) (*Request, error) {
	id, err := NewID()
	if err != nil {
		return nil, fmt.Errorf("message: generate id: %w", err)
	}
	return &Request{Method: method, ID: id, Version: ProtocolVersion}, nil
}

// Response is the printer's answer to a Request.
//
// Parameters is only meaningful when Success is true. Interpreting a failed
// response is left to the caller.
type Response struct {
	ID            ID             `json:"Id"`
	Parameters    map[string]any `json:"Parameters"`
	ReplyToMethod string         `json:"ReplyToMethod"`
	Success       bool           `json:"Success"`
	Version       int            `json:"Version"`
}

// wireResponse tracks which keys were present.
type wireResponse struct {
	ID            *ID             `json:"Id"`
	Parameters    json.RawMessage `json:"Parameters"`
	ReplyToMethod *string         `json:"ReplyToMethod"`
	Success       *bool           `json:"Success"`
	Version       *int            `json:"Version"`
}

// UnmarshalJSON requires every field to be present. Parameters may be null.
func (r *Response) UnmarshalJSON(data []byte) error {
	var w wireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.ID == nil:
		return missingField("Id")
	case w.Parameters == nil:
		return missingField("Parameters")
	case w.ReplyToMethod == nil:
		return missingField("ReplyToMethod")
	case w.Success == nil:
		return missingField("Success")
	case w.Version == nil:
		return missingField("Version")
	}

	params := map[string]any{}
	if string(w.Parameters) != "null" {
		if err := json.Unmarshal(w.Parameters, &params); err != nil {
			return fmt.Errorf("message: Parameters: %w", err)
		}
	}

	*r = Response{
		ID:            *w.ID,
		Parameters:    params,
		ReplyToMethod: *w.ReplyToMethod,
		Success:       *w.Success,
		Version:       *w.Version,
	}
	return nil
}

func missingField(name string) error {
	return fmt.Errorf("message: missing field %q", name)
}
