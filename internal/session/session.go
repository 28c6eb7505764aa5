package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cattackle-hq/cattackle-core/internal/errs"
)

var errUnsupportedTransport = errors.New("unsupported plugin transport")

// state is the protocol state of one PluginSession, per SPEC_FULL.md §3.
type state int

const (
	stateClosed state = iota
	stateHandshaking
	stateReady
	stateBroken
)

// pluginSession owns one live transport connection to a plugin.
type pluginSession struct {
	mu        sync.Mutex // guards state and transport; not held during call()
	state     state
	transport transport
	name      string
}

func (s *pluginSession) currentTransport() (transport, state) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.transport, s.state
}

func (s *pluginSession) markBroken() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = stateBroken
}

// call performs one tools/call against the session's transport, translating
// a context deadline into a Timeout error and any transport failure into a
// Transport error. It does not retry; retries are the Manager's job.
func (s *pluginSession) call(ctx context.Context, log *slog.Logger, command string, payload map[string]any, timeout time.Duration) (string, error) {
	tr, st := s.currentTransport()
	if st != stateReady {
		return "", errs.New(errs.KindPluginTransport, "session is not ready")
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params, err := json.Marshal(toolCallParams{Name: command, Arguments: payload})
	if err != nil {
		return "", errs.Wrap(errs.KindPluginTransport, "failed to encode tool call params", err)
	}

	req := &message{
		JSONRPC: jsonRPCVersion,
		ID:      newRequestID(),
		Method:  methodToolsCall,
		Params:  params,
	}

	resp, err := tr.call(callCtx, req)
	if err != nil {
		var e *errs.Error
		if errors.As(err, &e) && e.Kind == errs.KindPluginTimeout {
			return "", err
		}

		s.markBroken()
		log.WarnContext(ctx, "plugin session broke", "plugin", s.name, "err", err)

		return "", errs.Wrap(errs.KindPluginTransport, "plugin transport failure", err)
	}

	return decodeToolCallReply(resp)
}

func decodeToolCallReply(resp *message) (string, error) {
	if resp.Error != nil {
		return "", errs.New(errs.KindPluginApplicationError, resp.Error.Message)
	}

	var result toolCallResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return "", errs.Wrap(errs.KindPluginTransport, "failed to decode tool call result", err)
	}

	if len(result.Content) == 0 {
		return "", nil
	}

	first := result.Content[0]

	var appErr applicationError
	if json.Unmarshal([]byte(first.Text), &appErr) == nil && appErr.Error != "" {
		return "", errs.New(errs.KindPluginApplicationError, appErr.Error)
	}

	return first.Text, nil
}

func handshake(ctx context.Context, tr transport, name string) error {
	params, err := json.Marshal(map[string]any{"clientInfo": map[string]string{"name": "cattackle-core"}})
	if err != nil {
		return fmt.Errorf("failed to encode handshake params: %w", err)
	}

	req := &message{
		JSONRPC: jsonRPCVersion,
		ID:      newRequestID(),
		Method:  "initialize",
		Params:  params,
	}

	if _, err := tr.call(ctx, req); err != nil {
		return errs.Wrap(errs.KindPluginTransport, fmt.Sprintf("handshake with plugin %q failed", name), err)
	}

	return nil
}
