// Package events publishes optimize progress to a socket.io server so a
// dashboard can follow a run live.
package events

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/specialistvlad/gridnav/internal/command"
	"github.com/specialistvlad/gridnav/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// Event names emitted by the publisher.
const (
	EventCommandStarted  = "command_started"
	EventCommandFinished = "command_finished"
)

const defaultConnectTimeout = 15 * time.Second

// Options configures the connection.
type Options struct {
	URL                string
	Namespace          string
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
}

// Publisher is a pipeline observer that emits one event per command
// transition. Emitting never blocks the run: socket.io buffers while
// reconnecting.
type Publisher struct {
	runID string
	emit  func(event string, payload map[string]any)
	close func()
}

// Connect dials the server and waits for the namespace to connect.
func Connect(ctx context.Context, runID string, o Options) (*Publisher, error) {
	logger := ctxlog.FromContext(ctx).With("events_url", o.URL)

	parsedURL, err := url.Parse(o.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse events URL: %w", err)
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if o.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(o.Namespace, opts)

	connected := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("📡 Connected to events server", "sid", io.Id())
		connected <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("%v", errs)
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connected <- err
	})
	io.Connect()

	timeout := o.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", timeout)
	}

	return newPublisher(runID,
		func(event string, payload map[string]any) { io.Emit(event, payload) },
		func() { io.Disconnect() },
	), nil
}

func newPublisher(runID string, emit func(string, map[string]any), close func()) *Publisher {
	return &Publisher{runID: runID, emit: emit, close: close}
}

// Close disconnects from the server.
func (p *Publisher) Close() {
	p.close()
}

func (p *Publisher) CommandStarted(ctx context.Context, pipeline, cmd string) {
	p.emit(EventCommandStarted, map[string]any{
		"run_id":   p.runID,
		"pipeline": pipeline,
		"command":  cmd,
	})
}

func (p *Publisher) CommandFinished(ctx context.Context, pipeline string, result command.Result) {
	payload := map[string]any{
		"run_id":      p.runID,
		"pipeline":    pipeline,
		"command":     result.Name,
		"status":      string(result.Status),
		"duration_ms": result.Duration.Milliseconds(),
	}
	if result.Error != "" {
		payload["error"] = result.Error
	}
	p.emit(EventCommandFinished, payload)
	ctxlog.FromContext(ctx).Debug("Published command event.", "command", result.Name, "status", result.Status)
}
