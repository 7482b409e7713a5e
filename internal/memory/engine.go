package memory

import (
	"sync"
	"time"

	"github.com/rocketscienceinc/memorymatch-backend/internal/entity"
)

const DefaultHideDelay = time.Second

type Settings struct {
	HideDelay time.Duration
	Scheduler Scheduler
	Source    Source

	// OnHide receives the state left by a timer-driven hide. It runs under the engine lock,
	// so it must not call back into the engine.
	OnHide func(game *entity.Game)
}

func (that Settings) withDefaults() Settings {
	if that.HideDelay <= 0 {
		that.HideDelay = DefaultHideDelay
	}

	if that.Scheduler == nil {
		that.Scheduler = NewClockScheduler()
	}

	if that.Source == nil {
		that.Source = globalSource{}
	}

	return that
}

// Engine owns one game and serializes every transition on it.
type Engine struct {
	mu       sync.Mutex
	settings Settings

	game *entity.Game

	// epoch is the cancellation token of the pending hide; bumping it orphans any callback in flight.
	epoch   uint64
	pending Timer
	closed  bool
}

// NewEngine - deals the first round of a new game.
func NewEngine(id string, settings Settings) *Engine {
	settings = settings.withDefaults()

	return &Engine{
		settings: settings,
		game:     entity.NewGame(id, 1, GenerateDeck(settings.Source)),
	}
}

// RestoreEngine - rebuilds an engine from a stored snapshot.
// A snapshot stored mid-resolution lost its timer, so the hide is applied right away.
func RestoreEngine(game *entity.Game, settings Settings) *Engine {
	restored := game.Clone()
	for i := range restored.Cards {
		restored.Cards[i].IsVisible = restored.Cards[i].IsMatched || restored.IsSelected(i)
	}

	engine := &Engine{
		settings: settings.withDefaults(),
		game:     restored,
	}

	if len(restored.Selected) >= entity.MaxSelected {
		engine.hide()
	}

	return engine
}

func (that *Engine) ID() string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.game.ID
}

func (that *Engine) Snapshot() *entity.Game {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.game.Clone()
}

// Select - flips the card at position. It reports false, changing nothing, when the selection is not allowed.
func (that *Engine) Select(position int) (*entity.Game, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if !that.canSelect(position) {
		return that.game.Clone(), false
	}

	that.game.Selected = append(that.game.Selected, position)
	that.game.Cards[position].IsVisible = true

	if len(that.game.Selected) == entity.MaxSelected {
		that.resolve()
	}

	return that.game.Clone(), true
}

// Reset - replaces the round with a freshly dealt one under the same game ID.
func (that *Engine) Reset() *entity.Game {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return that.game.Clone()
	}

	that.cancelPending()
	that.game = entity.NewGame(that.game.ID, that.game.Round+1, GenerateDeck(that.settings.Source))

	return that.game.Clone()
}

// Close - tears the engine down. The pending hide is cancelled and later calls change nothing.
func (that *Engine) Close() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.cancelPending()
	that.closed = true
}

// Commit - hands the current state to fn under the engine lock. Writes made by fn
// land in transition order, whatever order the callers arrived in.
func (that *Engine) Commit(fn func(game *entity.Game) error) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	return fn(that.game.Clone())
}

// HasPendingHide reports whether a mismatch is waiting for its hide.
func (that *Engine) HasPendingHide() bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.pending != nil
}

func (that *Engine) canSelect(position int) bool {
	switch {
	case that.closed:
		return false
	case len(that.game.Selected) >= entity.MaxSelected:
		return false
	case !that.game.InRange(position):
		return false
	case that.game.IsSelected(position):
		return false
	}

	return true
}

func (that *Engine) resolve() {
	first := &that.game.Cards[that.game.Selected[0]]
	second := &that.game.Cards[that.game.Selected[1]]

	if first.Matches(second.Card) {
		first.IsMatched, first.IsVisible = true, true
		second.IsMatched, second.IsVisible = true, true
		that.game.Selected = []int{}

		return
	}

	that.game.IncorrectAttempts++
	that.scheduleHide()
}

func (that *Engine) scheduleHide() {
	that.epoch++
	token := that.epoch

	that.pending = that.settings.Scheduler.AfterFunc(that.settings.HideDelay, func() {
		that.expire(token)
	})
}

// expire - applies the hide scheduled under token. OnHide runs before the lock is released,
// so no later transition can be reported ahead of it.
func (that *Engine) expire(token uint64) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed || that.pending == nil || token != that.epoch {
		return
	}

	that.pending = nil
	that.hide()

	if that.settings.OnHide != nil {
		that.settings.OnHide(that.game.Clone())
	}
}

func (that *Engine) hide() {
	that.game.Selected = []int{}
	for i := range that.game.Cards {
		that.game.Cards[i].IsVisible = that.game.Cards[i].IsMatched
	}
}

func (that *Engine) cancelPending() {
	if that.pending != nil {
		that.pending.Stop()
		that.pending = nil
	}

	that.epoch++
}
