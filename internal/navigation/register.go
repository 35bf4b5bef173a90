// Package navigation holds the deferred navigation register: a single
// slot for the deep-link target of a notification that arrived before
// the app was ready to navigate (cold start, pre-auth). Last write
// wins; the slot is consumed exactly once.
package navigation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/alexjbarnes/chatlink/internal/models"
)

// SettleDelay is how long the UI shell should wait after the home
// screen mounts before consuming the register, giving the navigation
// stack time to settle.
const SettleDelay = 1 * time.Second

// Store is the durable slot backing. Persistence is best-effort: when
// the store fails, the register degrades to memory-only and a cold
// start loses the pending target, which is acceptable.
type Store interface {
	DeferredNav() (models.NavTarget, bool, error)
	SetDeferredNav(target models.NavTarget) error
	ClearDeferredNav() error
}

// Register is the single-slot, last-write-wins store. All methods are
// safe for concurrent use.
type Register struct {
	logger *slog.Logger
	store  Store

	mu     sync.Mutex
	target models.NavTarget
	filled bool
}

// NewRegister creates a register, seeding the in-memory slot from the
// durable store so a target written before process death is recovered.
func NewRegister(store Store, logger *slog.Logger) *Register {
	r := &Register{
		logger: logger,
		store:  store,
	}

	if store == nil {
		return r
	}

	target, found, err := store.DeferredNav()
	if err != nil {
		logger.Warn("failed to load deferred navigation", slog.String("error", err.Error()))
		return r
	}

	if found {
		r.target = target
		r.filled = true
	}

	return r
}

// Set stores a pending navigation target, replacing any previous one.
func (r *Register) Set(target models.NavTarget) {
	if target.IsZero() {
		return
	}

	r.mu.Lock()
	r.target = target
	r.filled = true
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.SetDeferredNav(target); err != nil {
			r.logger.Warn("failed to persist deferred navigation",
				slog.String("chat_id", target.ChatID),
				slog.String("error", err.Error()),
			)
		}
	}

	r.logger.Debug("deferred navigation set", slog.String("chat_id", target.ChatID))
}

// Take reads and clears the slot atomically. The second call returns
// an empty target and false.
func (r *Register) Take() (models.NavTarget, bool) {
	r.mu.Lock()

	if !r.filled {
		r.mu.Unlock()
		return models.NavTarget{}, false
	}

	target := r.target
	r.target = models.NavTarget{}
	r.filled = false
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.ClearDeferredNav(); err != nil {
			r.logger.Warn("failed to clear deferred navigation", slog.String("error", err.Error()))
		}
	}

	return target, true
}
