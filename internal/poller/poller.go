// Package poller implements the main update-processing loop (SPEC_FULL.md
// §4.8): fetch updates, drive the router per update, persist the offset,
// and retry sends with backoff.
package poller

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/cattackle-hq/cattackle-core/internal/offset"
	"github.com/cattackle-hq/cattackle-core/internal/platform"
)

const (
	sendBaseDelay  = time.Second
	sendMaxRetries = 3 // plus the initial attempt, 4 total
)

// Platform is the subset of the platform client the poller needs.
type Platform interface {
	GetUpdates(ctx context.Context, offset int) []platform.Update
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Router is the subset of the router the poller needs.
type Router interface {
	Process(ctx context.Context, update platform.Update) (chatID int64, reply string, ok bool)
}

// Poller owns the main loop wiring the platform client, the router, and the
// offset store.
type Poller struct {
	platform Platform
	router   Router
	offsets  *offset.Store
	log      *slog.Logger
}

// New returns a Poller. A nil log uses slog.Default().
func New(p Platform, r Router, offsets *offset.Store, log *slog.Logger) *Poller {
	if log == nil {
		log = slog.Default()
	}

	return &Poller{platform: p, router: r, offsets: offsets, log: log}
}

// Run executes the main loop until ctx is canceled.
func (p *Poller) Run(ctx context.Context) error {
	next, err := p.offsets.Load()
	if err != nil {
		p.log.WarnContext(ctx, "failed to load offset, starting from none", "err", err)

		next = 0
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		updates := p.platform.GetUpdates(ctx, next)

		if len(updates) == 0 {
			continue
		}

		for _, update := range updates {
			chatID, reply, ok := p.router.Process(ctx, update)
			if ok && reply != "" {
				p.sendWithBackoff(ctx, chatID, reply)
			}

			next = int(update.UpdateID) + 1
		}

		if err := p.offsets.Save(next); err != nil {
			p.log.ErrorContext(ctx, "failed to save offset", "err", err, "offset", next)
		}
	}
}

// sendWithBackoff sends reply to chatID, retrying up to sendMaxRetries times
// with exponential backoff and jitter on failure. The final failure is
// logged and dropped (SPEC_FULL.md §7, PlatformSend).
func (p *Poller) sendWithBackoff(ctx context.Context, chatID int64, reply string) {
	var lastErr error

	for attempt := 0; attempt <= sendMaxRetries; attempt++ {
		if attempt > 0 {
			delay := sendBaseDelay<<(attempt-1) + time.Duration(rand.Int63n(int64(time.Second)))

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}

		if err := p.platform.SendMessage(ctx, chatID, reply); err != nil {
			lastErr = err

			continue
		}

		return
	}

	p.log.ErrorContext(ctx, "failed to send message after retries", "chat_id", chatID, "err", lastErr)
}
