package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"form2idle/message"
	"form2idle/protocol"
	"form2idle/server"
)

func startPrinter(t *testing.T, st server.PrinterStatus) *server.Server {
	t.Helper()
	svr := server.NewServer(server.WithLogger(zaptest.NewLogger(t)))
	svr.Handle(message.MethodGetStatus, server.StatusHandler(server.Static(st)))
	if err := svr.Listen("tcp", "127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}
	go svr.Serve()
	t.Cleanup(func() { svr.Shutdown(time.Second) })
	return svr
}

// fakePrinter serves one request on the far end of a pipe with a reply
// built by reply, which may return any raw payload.
func fakePrinter(t *testing.T, reply func(req message.Request) []byte) net.Conn {
	t.Helper()
	client, printer := net.Pipe()
	go func() {
		defer printer.Close()
		payload, err := protocol.Decode(printer)
		if err != nil {
			return
		}
		var req message.Request
		if err := json.Unmarshal(payload, &req); err != nil {
			return
		}
		protocol.Encode(printer, reply(req))
	}()
	return client
}

func TestConnSerialCalls(t *testing.T) {
	svr := startPrinter(t, server.PrinterStatus{Printing: true, Remaining: 65 * time.Second})

	c := New(svr.Addr().String(), WithLogger(zaptest.NewLogger(t)))
	if c.IsOpen() {
		t.Fatal("new Conn must start closed")
	}
	if err := c.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	for i := 0; i < 3; i++ {
		req, err := message.NewRequest(message.MethodGetStatus)
		if err != nil {
			t.Fatal(err)
		}
		resp, err := c.Call(context.Background(), req)
		if err != nil {
			t.Fatal(err)
		}
		if resp.ID != req.ID {
			t.Fatalf("expect id %s, got %s", req.ID, resp.ID)
		}
		if resp.Parameters["estimatedPrintTimeRemaining_ms"] != float64(65000) {
			t.Fatalf("unexpected parameters: %v", resp.Parameters)
		}
	}
}

func TestConnCorrelationMismatch(t *testing.T) {
	other, _ := message.NewID()
	nc := fakePrinter(t, func(req message.Request) []byte {
		return []byte(`{"Id":"` + other.String() + `","Parameters":{},"ReplyToMethod":"` + req.Method + `","Success":true,"Version":1}`)
	})
	c := NewConn(nc, WithLogger(zaptest.NewLogger(t)))
	defer c.Close()

	req, _ := message.NewRequest(message.MethodGetStatus)
	resp, err := c.Call(context.Background(), req)
	if !errors.Is(err, protocol.ErrCorrelationMismatch) {
		t.Fatalf("expect ErrCorrelationMismatch, got %v", err)
	}
	if resp != nil {
		t.Fatalf("expect no response, got %+v", resp)
	}
}

func TestConnAcceptsBareID(t *testing.T) {
	nc := fakePrinter(t, func(req message.Request) []byte {
		return []byte(`{"Id":"` + req.ID.String() + `","Parameters":{"isPrinting":false},"ReplyToMethod":"` + req.Method + `","Success":true,"Version":1}`)
	})
	c := NewConn(nc)
	defer c.Close()

	req, _ := message.NewRequest(message.MethodGetStatus)
	if _, err := c.Call(context.Background(), req); err != nil {
		t.Fatalf("expect bare id to be accepted, got %v", err)
	}
}

func TestConnMalformedResponse(t *testing.T) {
	nc := fakePrinter(t, func(req message.Request) []byte {
		return []byte(`{"Id":"` + req.ID.Braced() + `","Success":true}`)
	})
	c := NewConn(nc)
	defer c.Close()

	req, _ := message.NewRequest(message.MethodGetStatus)
	if _, err := c.Call(context.Background(), req); !errors.Is(err, protocol.ErrMalformedMessage) {
		t.Fatalf("expect ErrMalformedMessage, got %v", err)
	}
}

func TestConnPeerClosesMidCall(t *testing.T) {
	client, printer := net.Pipe()
	go func() {
		protocol.Decode(printer)
		// Length prefix promising more bytes than will ever arrive
		printer.Write([]byte{0x10, 0, 0, 0, '{'})
		printer.Close()
	}()
	c := NewConn(client)
	defer c.Close()

	req, _ := message.NewRequest(message.MethodGetStatus)
	if _, err := c.Call(context.Background(), req); !errors.Is(err, protocol.ErrConnectionClosed) {
		t.Fatalf("expect ErrConnectionClosed, got %v", err)
	}
}

func TestConnCallLifecycle(t *testing.T) {
	svr := startPrinter(t, server.PrinterStatus{})
	c := New(svr.Addr().String())
	req, _ := message.NewRequest(message.MethodGetStatus)

	// Before Open
	if _, err := c.Call(context.Background(), req); !errors.Is(err, protocol.ErrNotOpen) {
		t.Fatalf("expect ErrNotOpen before open, got %v", err)
	}
	if err := c.Close(); !errors.Is(err, protocol.ErrNotOpen) {
		t.Fatalf("expect ErrNotOpen closing a closed conn, got %v", err)
	}

	if err := c.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Open(context.Background()); !errors.Is(err, protocol.ErrAlreadyOpen) {
		t.Fatalf("expect ErrAlreadyOpen, got %v", err)
	}
	if _, err := c.Call(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	// After Close
	if _, err := c.Call(context.Background(), req); !errors.Is(err, protocol.ErrNotOpen) {
		t.Fatalf("expect ErrNotOpen after close, got %v", err)
	}
}

func TestConnOpenFailure(t *testing.T) {
	// Grab a free port and release it so nothing listens there
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	c := New(addr)
	if err := c.Open(context.Background()); !errors.Is(err, protocol.ErrConnection) {
		t.Fatalf("expect ErrConnection, got %v", err)
	}
	if c.IsOpen() {
		t.Fatal("conn must stay closed after failed open")
	}
}

func TestConnCallContextDeadline(t *testing.T) {
	// A printer that never answers
	client, printer := net.Pipe()
	go func() {
		protocol.Decode(printer)
	}()
	defer printer.Close()

	c := NewConn(client)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req, _ := message.NewRequest(message.MethodGetStatus)
	done := make(chan error, 1)
	go func() {
		_, err := c.Call(ctx, req)
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, protocol.ErrConnection) || !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expect ErrConnection wrapping DeadlineExceeded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("call did not honor the context deadline")
	}
}

func TestConnCallCancelledContext(t *testing.T) {
	svr := startPrinter(t, server.PrinterStatus{})
	c, err := Dial(context.Background(), svr.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, _ := message.NewRequest(message.MethodGetStatus)
	_, err = c.Call(ctx, req)
	if !errors.Is(err, protocol.ErrConnection) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expect ErrConnection wrapping context.Canceled, got %v", err)
	}
}

func TestConnCallAfterAbortedCall(t *testing.T) {
	// The printer swallows the first request and answers the second
	client, printer := net.Pipe()
	go func() {
		defer printer.Close()
		if _, err := protocol.Decode(printer); err != nil {
			return
		}
		payload, err := protocol.Decode(printer)
		if err != nil {
			return
		}
		var req message.Request
		if err := json.Unmarshal(payload, &req); err != nil {
			return
		}
		protocol.Encode(printer, []byte(`{"Id":"`+req.ID.Braced()+`","Parameters":{},"ReplyToMethod":"`+req.Method+`","Success":true,"Version":1}`))
	}()

	c := NewConn(client)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	req, _ := message.NewRequest(message.MethodGetStatus)
	if _, err := c.Call(ctx, req); !errors.Is(err, context.Canceled) {
		t.Fatalf("expect context.Canceled, got %v", err)
	}

	req, _ = message.NewRequest(message.MethodGetStatus)
	resp, err := c.Call(context.Background(), req)
	if err != nil {
		t.Fatalf("call after an aborted call failed: %v", err)
	}
	if resp.ID != req.ID {
		t.Fatalf("expect id %s, got %s", req.ID, resp.ID)
	}
}

func TestWithConn(t *testing.T) {
	svr := startPrinter(t, server.PrinterStatus{Printing: true, Remaining: time.Second})

	var held *Conn
	err := WithConn(context.Background(), svr.Addr().String(), func(c *Conn) error {
		held = c
		req, _ := message.NewRequest(message.MethodGetStatus)
		_, err := c.Call(context.Background(), req)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if held.IsOpen() {
		t.Fatal("conn must be closed after WithConn returns")
	}

	// Closed on the failure path too, and fn's error wins
	boom := errors.New("boom")
	err = WithConn(context.Background(), svr.Addr().String(), func(c *Conn) error {
		held = c
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expect fn error, got %v", err)
	}
	if held.IsOpen() {
		t.Fatal("conn must be closed after a failing fn")
	}

	// And when fn panics
	func() {
		defer func() { recover() }()
		WithConn(context.Background(), svr.Addr().String(), func(c *Conn) error {
			held = c
			panic("boom")
		})
	}()
	if held.IsOpen() {
		t.Fatal("conn must be closed after a panicking fn")
	}
}

func TestAddress(t *testing.T) {
	cases := map[string]string{
		"form2.local":   "form2.local:35",
		"10.0.0.5":      "10.0.0.5:35",
		"10.0.0.5:3500": "10.0.0.5:3500",
		"fe80::1":       "[fe80::1]:35",
		"[fe80::1]":     "[fe80::1]:35",
		"[fe80::1]:36":  "[fe80::1]:36",
	}
	for in, want := range cases {
		if got := Address(in); got != want {
			t.Errorf("Address(%q) = %q, want %q", in, got, want)
		}
	}
}
