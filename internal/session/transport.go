package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"sync"

	"github.com/google/uuid"

	"github.com/cattackle-hq/cattackle-core/internal/errs"
	"github.com/cattackle-hq/cattackle-core/internal/registry"
)

// transport is a single round-trip request/response channel to a plugin. Its
// call method is safe for concurrent use; each implementation is
// responsible for correlating concurrent in-flight requests by id.
type transport interface {
	call(ctx context.Context, req *message) (*message, error)
	close(ctx context.Context) error
}

func newTransport(manifest *registry.Manifest, log *slog.Logger) (transport, error) {
	switch manifest.MCP.Transport {
	case registry.TransportStdio:
		return newStdioTransport(manifest, log)
	case registry.TransportHTTP:
		return newHTTPTransport(manifest), nil
	default:
		return nil, fmt.Errorf("%w: unsupported transport %q", errUnsupportedTransport, manifest.MCP.Transport)
	}
}

// --- stdio transport -------------------------------------------------------

type stdioTransport struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	mu      sync.Mutex // guards writes to stdin and the pending map
	pending map[string]chan *message
	log     *slog.Logger
}

func newStdioTransport(manifest *registry.Manifest, log *slog.Logger) (*stdioTransport, error) {
	cmd := exec.Command(manifest.MCP.Command, manifest.MCP.Args...) //nolint:gosec // plugin command comes from trusted local manifest

	if manifest.MCP.Cwd != "" {
		cmd.Dir = manifest.MCP.Cwd
	}

	for k, v := range manifest.MCP.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open plugin stdin: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open plugin stdout: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open plugin stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start plugin process: %w", err)
	}

	t := &stdioTransport{
		cmd:     cmd,
		stdin:   stdin,
		pending: make(map[string]chan *message),
		log:     log,
	}

	go t.readLoop(stdout)
	go t.logStderr(stderr)

	return t, nil
}

func (t *stdioTransport) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var msg message
		if err := json.Unmarshal(line, &msg); err != nil {
			t.log.Error("failed to decode plugin message", "err", err)

			continue
		}

		t.mu.Lock()
		ch, ok := t.pending[msg.ID]
		if ok {
			delete(t.pending, msg.ID)
		}
		t.mu.Unlock()

		if ok {
			ch <- &msg
		}
	}

	t.mu.Lock()
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
	t.mu.Unlock()
}

func (t *stdioTransport) logStderr(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		t.log.Warn("plugin stderr", "line", scanner.Text())
	}
}

func (t *stdioTransport) call(ctx context.Context, req *message) (*message, error) {
	ch := make(chan *message, 1)

	t.mu.Lock()
	t.pending[req.ID] = ch
	t.mu.Unlock()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindPluginTransport, "failed to encode request", err)
	}

	data = append(data, '\n')

	t.mu.Lock()
	_, writeErr := t.stdin.Write(data)
	t.mu.Unlock()

	if writeErr != nil {
		return nil, errs.Wrap(errs.KindPluginTransport, "failed to write request to plugin stdin", writeErr)
	}

	select {
	case <-ctx.Done():
		return nil, errs.Wrap(errs.KindPluginTimeout, "plugin call timed out", ctx.Err())
	case resp, ok := <-ch:
		if !ok {
			return nil, errs.New(errs.KindPluginTransport, "plugin stdout closed before a reply arrived")
		}

		return resp, nil
	}
}

func (t *stdioTransport) close(ctx context.Context) error {
	_ = t.stdin.Close()

	done := make(chan error, 1)

	go func() { done <- t.cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = t.cmd.Process.Kill()

		return fmt.Errorf("%w", ctx.Err())
	case err := <-done:
		return err //nolint:wrapcheck
	}
}

// --- streamable HTTP transport ---------------------------------------------

type httpTransport struct {
	client  *http.Client
	url     string
	headers map[string]string
}

func newHTTPTransport(manifest *registry.Manifest) *httpTransport {
	return &httpTransport{
		client:  &http.Client{},
		url:     manifest.MCP.URL,
		headers: manifest.MCP.AuthHeaders,
	}
}

func (t *httpTransport) call(ctx context.Context, req *message) (*message, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindPluginTransport, "failed to encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(data))
	if err != nil {
		return nil, errs.Wrap(errs.KindPluginTransport, "failed to build plugin http request", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.KindPluginTimeout, "plugin call timed out", ctx.Err())
		}

		return nil, errs.Wrap(errs.KindPluginTransport, "plugin http call failed", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, errs.New(errs.KindPluginTransport, fmt.Sprintf("plugin returned http status %d", resp.StatusCode))
	}

	var msg message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, errs.Wrap(errs.KindPluginTransport, "failed to decode plugin http response", err)
	}

	return &msg, nil
}

func (t *httpTransport) close(_ context.Context) error {
	t.client.CloseIdleConnections()

	return nil
}

func newRequestID() string {
	return uuid.NewString()
}
