package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rocketscienceinc/memorymatch-backend/internal/apperror"
	"github.com/rocketscienceinc/memorymatch-backend/internal/entity"
	"github.com/rocketscienceinc/memorymatch-backend/internal/memory"
	"github.com/rocketscienceinc/memorymatch-backend/internal/pkg"
	"github.com/rocketscienceinc/memorymatch-backend/internal/repository"
)

const (
	persistTimeout   = 5 * time.Second
	subscriberBuffer = 8
)

type playerService interface {
	CreatePlayer(ctx context.Context, cheatMode bool) (*entity.Player, error)
	GetPlayerByID(ctx context.Context, id string) (*entity.Player, error)
	UpdatePlayer(ctx context.Context, player *entity.Player) error
}

type gameService interface {
	SaveGame(ctx context.Context, game *entity.Game) error
	GetGameByID(ctx context.Context, id string) (*entity.Game, error)
	DeleteGame(ctx context.Context, id string) error
}

type Settings struct {
	HideDelay        time.Duration
	DefaultCheatMode bool

	// Scheduler and Source are left nil outside tests.
	Scheduler memory.Scheduler
	Source    memory.Source
}

// Session is a player together with the current state of their game.
type Session struct {
	Player *entity.Player
	Game   *entity.Game
}

func (that *Session) View() *memory.GameView {
	return memory.BuildView(that.Game, that.Player.CheatMode)
}

type subscription struct {
	ch chan *entity.Game
}

// GameManager keeps one live engine per game and persists every transition.
type GameManager struct {
	logger   *slog.Logger
	settings Settings

	playerService playerService
	gameService   gameService

	mu          sync.Mutex
	engines     map[string]*memory.Engine
	subscribers map[string]map[*subscription]struct{}
	closed      bool
}

func NewGameManager(logger *slog.Logger, settings Settings, playerService playerService, gameService gameService) *GameManager {
	return &GameManager{
		logger:   logger.With("component", "game_manager"),
		settings: settings,

		playerService: playerService,
		gameService:   gameService,

		engines:     make(map[string]*memory.Engine),
		subscribers: make(map[string]map[*subscription]struct{}),
	}
}

// GetOrCreatePlayer - returns the player for id, or a new one when id is empty or unknown.
func (that *GameManager) GetOrCreatePlayer(ctx context.Context, id string) (*entity.Player, error) {
	if id != "" {
		player, err := that.playerService.GetPlayerByID(ctx, id)
		if err == nil {
			return player, nil
		}

		if !errors.Is(err, repository.ErrPlayerNotFound) {
			return nil, fmt.Errorf("failed to get player: %w", err)
		}
	}

	player, err := that.playerService.CreatePlayer(ctx, that.settings.DefaultCheatMode)
	if err != nil {
		return nil, fmt.Errorf("failed to create player: %w", err)
	}

	that.logger.Debug("player created", "playerID", player.ID)

	return player, nil
}

// GetPlayer - returns the stored player without creating one.
func (that *GameManager) GetPlayer(ctx context.Context, id string) (*entity.Player, error) {
	if id == "" {
		return nil, apperror.ErrMissingSession
	}

	player, err := that.playerService.GetPlayerByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	return player, nil
}

func (that *GameManager) GetOrCreateGame(ctx context.Context, playerID string) (*Session, error) {
	player, engine, err := that.playerEngine(ctx, playerID)
	if err != nil {
		return nil, err
	}

	return &Session{Player: player, Game: engine.Snapshot()}, nil
}

// SelectCard - flips a card. Selections the engine ignores return the unchanged state, not an error.
func (that *GameManager) SelectCard(ctx context.Context, playerID string, position int) (*Session, error) {
	player, engine, err := that.playerEngine(ctx, playerID)
	if err != nil {
		return nil, err
	}

	game, applied := engine.Select(position)
	if !applied {
		return &Session{Player: player, Game: game}, nil
	}

	if err = that.persist(ctx, engine); err != nil {
		return nil, err
	}

	return &Session{Player: player, Game: game}, nil
}

func (that *GameManager) Reset(ctx context.Context, playerID string) (*Session, error) {
	player, engine, err := that.playerEngine(ctx, playerID)
	if err != nil {
		return nil, err
	}

	game := engine.Reset()
	if err = that.persist(ctx, engine); err != nil {
		return nil, err
	}

	that.logger.Info("game reset", "gameID", game.ID, "round", game.Round)

	return &Session{Player: player, Game: game}, nil
}

// SetCheatMode - stores the display flag; the game itself is left alone.
func (that *GameManager) SetCheatMode(ctx context.Context, playerID string, enabled bool) (*Session, error) {
	player, engine, err := that.playerEngine(ctx, playerID)
	if err != nil {
		return nil, err
	}

	if player.CheatMode != enabled {
		player.CheatMode = enabled
		if err = that.playerService.UpdatePlayer(ctx, player); err != nil {
			return nil, fmt.Errorf("failed to update player: %w", err)
		}
	}

	return &Session{Player: player, Game: engine.Snapshot()}, nil
}

// Subscribe - delivers the state left by every timer-driven hide of gameID until cancel is called.
func (that *GameManager) Subscribe(gameID string) (<-chan *entity.Game, func()) {
	sub := &subscription{ch: make(chan *entity.Game, subscriberBuffer)}

	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		close(sub.ch)
		return sub.ch, func() {}
	}

	if that.subscribers[gameID] == nil {
		that.subscribers[gameID] = make(map[*subscription]struct{})
	}
	that.subscribers[gameID][sub] = struct{}{}

	cancel := func() {
		that.mu.Lock()
		defer that.mu.Unlock()

		if _, ok := that.subscribers[gameID][sub]; !ok {
			return
		}

		delete(that.subscribers[gameID], sub)
		if len(that.subscribers[gameID]) == 0 {
			delete(that.subscribers, gameID)
		}
		close(sub.ch)
	}

	return sub.ch, cancel
}

// Close - tears every engine down so no pending hide fires after shutdown.
func (that *GameManager) Close() {
	that.mu.Lock()

	if that.closed {
		that.mu.Unlock()
		return
	}
	that.closed = true

	engines := make([]*memory.Engine, 0, len(that.engines))
	for id, engine := range that.engines {
		engines = append(engines, engine)
		delete(that.engines, id)
	}

	for id, subs := range that.subscribers {
		for sub := range subs {
			close(sub.ch)
		}
		delete(that.subscribers, id)
	}

	that.mu.Unlock()

	// A hide in flight holds its engine lock and then takes that.mu, so engines close after it is released.
	for _, engine := range engines {
		engine.Close()
	}

	that.logger.Info("game manager closed")
}

func (that *GameManager) playerEngine(ctx context.Context, playerID string) (*entity.Player, *memory.Engine, error) {
	if playerID == "" {
		return nil, nil, apperror.ErrMissingSession
	}

	player, err := that.playerService.GetPlayerByID(ctx, playerID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get player: %w", err)
	}

	engine, err := that.engineFor(ctx, player)
	if err != nil {
		return nil, nil, err
	}

	return player, engine, nil
}

// engineFor - live engine first, then a stored snapshot, then a brand new game.
func (that *GameManager) engineFor(ctx context.Context, player *entity.Player) (*memory.Engine, error) {
	if player.GameID != "" {
		engine, err := that.liveEngine(player.GameID)
		if err != nil || engine != nil {
			return engine, err
		}

		engine, err = that.restoreEngine(ctx, player.GameID)
		if err != nil || engine != nil {
			return engine, err
		}
	}

	return that.createEngine(ctx, player)
}

func (that *GameManager) liveEngine(gameID string) (*memory.Engine, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return nil, apperror.ErrManagerClosed
	}

	return that.engines[gameID], nil
}

func (that *GameManager) restoreEngine(ctx context.Context, gameID string) (*memory.Engine, error) {
	log := that.logger.With("method", "restoreEngine", "gameID", gameID)

	snapshot, err := that.gameService.GetGameByID(ctx, gameID)
	if errors.Is(err, repository.ErrGameNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	if len(snapshot.Cards) != entity.DeckSize {
		log.Warn("dropping malformed snapshot", "cards", len(snapshot.Cards))

		if err = that.gameService.DeleteGame(ctx, gameID); err != nil {
			log.Error("failed to delete snapshot", "error", err)
		}

		return nil, nil
	}

	engine := memory.RestoreEngine(snapshot, that.engineSettings())

	log.Info("game restored", "round", snapshot.Round)

	return that.register(engine)
}

func (that *GameManager) createEngine(ctx context.Context, player *entity.Player) (*memory.Engine, error) {
	engine := memory.NewEngine(pkg.GenerateGameID(), that.engineSettings())
	game := engine.Snapshot()

	if err := that.gameService.SaveGame(ctx, game); err != nil {
		engine.Close()
		return nil, fmt.Errorf("failed to save game: %w", err)
	}

	player.GameID = game.ID
	if err := that.playerService.UpdatePlayer(ctx, player); err != nil {
		engine.Close()
		return nil, fmt.Errorf("failed to update player: %w", err)
	}

	that.logger.Info("game created", "gameID", game.ID, "playerID", player.ID)

	return that.register(engine)
}

// register - adds engine unless another request got there first, in which case that one wins.
func (that *GameManager) register(engine *memory.Engine) (*memory.Engine, error) {
	id := engine.ID()

	that.mu.Lock()

	if that.closed {
		that.mu.Unlock()
		engine.Close()

		return nil, apperror.ErrManagerClosed
	}

	if existing, ok := that.engines[id]; ok {
		that.mu.Unlock()
		engine.Close()

		return existing, nil
	}

	that.engines[id] = engine
	that.mu.Unlock()

	return engine, nil
}

// persist - stores the engine's current state in transition order.
func (that *GameManager) persist(ctx context.Context, engine *memory.Engine) error {
	err := engine.Commit(func(game *entity.Game) error {
		return that.gameService.SaveGame(ctx, game)
	})
	if err != nil {
		return fmt.Errorf("failed to save game: %w", err)
	}

	return nil
}

func (that *GameManager) engineSettings() memory.Settings {
	return memory.Settings{
		HideDelay: that.settings.HideDelay,
		Scheduler: that.settings.Scheduler,
		Source:    that.settings.Source,
		OnHide:    that.onHide,
	}
}

// onHide - runs on the timer goroutine under the engine lock, so it persists with its own context
// and never calls back into the engine.
func (that *GameManager) onHide(game *entity.Game) {
	log := that.logger.With("method", "onHide", "gameID", game.ID)

	that.mu.Lock()
	closed := that.closed
	that.mu.Unlock()

	if closed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := that.gameService.SaveGame(ctx, game); err != nil {
		log.Error("failed to save game", "error", err)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	for sub := range that.subscribers[game.ID] {
		select {
		case sub.ch <- game.Clone():
		default:
			log.Warn("subscriber is slow, update dropped")
		}
	}
}
