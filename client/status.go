package client

import (
	"encoding/json"
	"fmt"
	"time"

	"form2idle/message"
	"form2idle/protocol"
)

// Status parameter keys reported by the printer.
const (
	ParamIsPrinting    = "isPrinting"
	ParamRemainingTime = "estimatedPrintTimeRemaining_ms"
)

// Status is the part of a GET_STATUS response this tool understands.
type Status struct {
	Printing        bool
	RemainingMillis float64 // As reported; may be zero or negative once a print ends
	Success         bool
	Parameters      map[string]any // Full report, for fields not modelled here
}

// Remaining is the print countdown, zero when there is none.
func (s *Status) Remaining() time.Duration {
	if !s.Printing || s.RemainingMillis <= 0 {
		return 0
	}
	return time.Duration(s.RemainingMillis * float64(time.Millisecond))
}

// Seconds is the print countdown in seconds, 0.0 when there is none.
func (s *Status) Seconds() float64 {
	if !s.Printing || s.RemainingMillis <= 0 {
		return 0.0
	}
	return s.RemainingMillis / 1000
}

// ParseStatus extracts a Status from a GET_STATUS response. Success is copied
// but not interpreted. The remaining time is only required while printing.
func ParseStatus(resp *message.Response) (*Status, error) {
	st := &Status{Success: resp.Success, Parameters: resp.Parameters}

	raw, ok := resp.Parameters[ParamIsPrinting]
	if !ok {
		return nil, fmt.Errorf("%w: status has no %s", protocol.ErrMalformedMessage, ParamIsPrinting)
	}
	st.Printing, ok = raw.(bool)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T, want bool", protocol.ErrMalformedMessage, ParamIsPrinting, raw)
	}
	if !st.Printing {
		return st, nil
	}

	raw, ok = resp.Parameters[ParamRemainingTime]
	if !ok {
		return nil, fmt.Errorf("%w: status has no %s", protocol.ErrMalformedMessage, ParamRemainingTime)
	}
	st.RemainingMillis, ok = number(raw)
	if !ok {
		return nil, fmt.Errorf("%w: %s is %T, want number", protocol.ErrMalformedMessage, ParamRemainingTime, raw)
	}
	return st, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
