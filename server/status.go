package server

import (
	"context"
	"maps"
	"sync"
	"time"

	"form2idle/message"
)

// Keys of the GET_STATUS parameters that clients read.
const (
	ParamIsPrinting    = "isPrinting"
	ParamRemainingTime = "estimatedPrintTimeRemaining_ms"
)

// PrinterStatus is what a simulated printer reports.
type PrinterStatus struct {
	Printing  bool
	Remaining time.Duration
	Extra     map[string]any // Copied into the parameters as-is
}

// StatusSource produces the current status on every GET_STATUS request.
type StatusSource interface {
	Status() PrinterStatus
}

// StatusFunc adapts a function to StatusSource.
type StatusFunc func() PrinterStatus

func (f StatusFunc) Status() PrinterStatus { return f() }

// Static always reports the same status.
func Static(st PrinterStatus) StatusSource {
	return StatusFunc(func() PrinterStatus { return st })
}

// Countdown simulates a print that finishes after a fixed duration.
type Countdown struct {
	mu  sync.Mutex
	end time.Time
	now func() time.Time
}

func NewCountdown(d time.Duration) *Countdown {
	return newCountdownAt(d, time.Now)
}

func newCountdownAt(d time.Duration, now func() time.Time) *Countdown {
	return &Countdown{end: now().Add(d), now: now}
}

// Restart begins a new print of duration d.
func (c *Countdown) Restart(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.end = c.now().Add(d)
}

func (c *Countdown) Status() PrinterStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	remaining := c.end.Sub(c.now())
	if remaining <= 0 {
		return PrinterStatus{Printing: false, Remaining: 0}
	}
	return PrinterStatus{Printing: true, Remaining: remaining}
}

// StatusHandler serves GET_STATUS from src.
func StatusHandler(src StatusSource) HandlerFunc {
	return func(ctx context.Context, req *message.Request) (map[string]any, error) {
		st := src.Status()
		params := make(map[string]any, len(st.Extra)+2)
		maps.Copy(params, st.Extra)
		params[ParamIsPrinting] = st.Printing
		params[ParamRemainingTime] = st.Remaining.Milliseconds()
		return params, nil
	}
}
