package poller_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cattackle-hq/cattackle-core/internal/offset"
	"github.com/cattackle-hq/cattackle-core/internal/platform"
	"github.com/cattackle-hq/cattackle-core/internal/poller"
)

type fakePlatform struct {
	mu      sync.Mutex
	batches [][]platform.Update
	sent    []string
	sendErr error
}

func (f *fakePlatform) GetUpdates(context.Context, int) []platform.Update {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.batches) == 0 {
		return nil
	}

	next := f.batches[0]
	f.batches = f.batches[1:]

	return next
}

func (f *fakePlatform) SendMessage(_ context.Context, _ int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.sendErr != nil {
		return f.sendErr
	}

	f.sent = append(f.sent, text)

	return nil
}

type fakeRouter struct {
	reply string
	ok    bool
}

func (f *fakeRouter) Process(context.Context, platform.Update) (int64, string, bool) {
	return 1, f.reply, f.ok
}

func TestRunAdvancesOffsetAndSendsReplies(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())

	plat := &fakePlatform{batches: [][]platform.Update{
		{{UpdateID: 10}},
	}}
	router := &fakeRouter{reply: "pong", ok: true}
	store := offset.New(filepath.Join(t.TempDir(), "offset"))

	go func() {
		// Let the single batch get processed, then stop the loop.
		for {
			plat.mu.Lock()
			done := len(plat.batches) == 0
			plat.mu.Unlock()

			if done {
				cancel()

				return
			}
		}
	}()

	p := poller.New(plat, router, store, nil)
	err := p.Run(ctx)
	require.NoError(t, err)

	n, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	plat.mu.Lock()
	defer plat.mu.Unlock()
	assert.Equal(t, []string{"pong"}, plat.sent)
}

func TestRunSkipsSendWhenRouterSaysNotOK(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())

	plat := &fakePlatform{batches: [][]platform.Update{
		{{UpdateID: 1}},
	}}
	router := &fakeRouter{reply: "", ok: false}
	store := offset.New(filepath.Join(t.TempDir(), "offset"))

	go func() {
		for {
			plat.mu.Lock()
			done := len(plat.batches) == 0
			plat.mu.Unlock()

			if done {
				cancel()

				return
			}
		}
	}()

	p := poller.New(plat, router, store, nil)
	require.NoError(t, p.Run(ctx))

	plat.mu.Lock()
	defer plat.mu.Unlock()
	assert.Empty(t, plat.sent)
}
