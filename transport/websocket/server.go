package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rocketscienceinc/memorymatch-backend/internal/entity"
	"github.com/rocketscienceinc/memorymatch-backend/internal/pkg"
	"github.com/rocketscienceinc/memorymatch-backend/internal/usecase"
)

const writeTimeout = 5 * time.Second

type gameManager interface {
	GetOrCreatePlayer(ctx context.Context, id string) (*entity.Player, error)
	GetPlayer(ctx context.Context, id string) (*entity.Player, error)

	GetOrCreateGame(ctx context.Context, playerID string) (*usecase.Session, error)
	SelectCard(ctx context.Context, playerID string, position int) (*usecase.Session, error)
	Reset(ctx context.Context, playerID string) (*usecase.Session, error)

	SetCheatMode(ctx context.Context, playerID string, enabled bool) (*usecase.Session, error)

	Subscribe(gameID string) (<-chan *entity.Game, func())
}

type handlerFunc func(ctx context.Context, client *client, msg *Message) error

type Server struct {
	logger   *slog.Logger
	manager  gameManager
	validate *validator.Validate

	originPatterns []string
	router         *chi.Mux
	srv            *http.Server

	baseCtx    context.Context
	cancelBase context.CancelFunc

	handlers map[string]handlerFunc
}

func New(logger *slog.Logger, manager gameManager, clientOrigin string) *Server {
	baseCtx, cancel := context.WithCancel(context.Background())

	server := &Server{
		logger:   logger.With("component", "websocket"),
		manager:  manager,
		validate: validator.New(),

		originPatterns: originPatterns(clientOrigin),
		router:         chi.NewRouter(),

		baseCtx:    baseCtx,
		cancelBase: cancel,

		handlers: make(map[string]handlerFunc),
	}

	server.handlers[actionConnect] = server.handleConnect
	server.handlers[actionGameState] = server.handleGameState
	server.handlers[actionCardSelect] = server.handleCardSelect
	server.handlers[actionGameReset] = server.handleGameReset
	server.handlers[actionCheatSet] = server.handleCheatSet

	server.router.Use(chimw.RealIP)
	server.router.Use(chimw.Recoverer)
	server.router.Get("/ws", server.upgradeToWebSocket)

	return server
}

func (that *Server) Handler() http.Handler {
	return that.router
}

// Start - starts WebSocket server and blocks until it stops.
func (that *Server) Start(port string) error {
	that.srv = &http.Server{
		Addr:              ":" + port,
		Handler:           that.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return that.baseCtx
		},
	}

	if err := that.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown - stops accepting connections and cancels the open ones.
func (that *Server) Shutdown(ctx context.Context) error {
	that.cancelBase()

	if that.srv == nil {
		return nil
	}

	if err := that.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

// upgradeToWebSocket - resolves the session cookie, upgrades the connection and serves it.
func (that *Server) upgradeToWebSocket(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "upgradeToWebSocket")

	sessionID := pkg.SessionID(r)

	player, err := that.manager.GetOrCreatePlayer(r.Context(), sessionID)
	if err != nil {
		log.Error("failed to resolve player", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if player.ID != sessionID {
		http.SetCookie(w, pkg.NewSessionCookie(player.ID))
		log.Info("session cookie not found, new one created", "player", player.ID)
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: that.originPatterns,
	})
	if err != nil {
		log.Error("failed to accept websocket", "error", err)
		return
	}
	defer conn.CloseNow()

	client := newClient(conn, player)
	defer client.unfollow()

	log.Info("WebSocket connection established", "player", player.ID)

	if err = that.handleMessages(r.Context(), client); err != nil {
		log.Error("error handling messages", "player", player.ID, "error", err)
		return
	}

	conn.Close(websocket.StatusNormalClosure, "")
}

func originPatterns(clientOrigin string) []string {
	u, err := url.Parse(clientOrigin)
	if err != nil || u.Host == "" {
		return nil
	}

	return []string{u.Host}
}

// client is one open connection and the game it follows.
type client struct {
	conn *websocket.Conn

	mu     sync.Mutex
	player *entity.Player
	gameID string
	cancel func()
}

func newClient(conn *websocket.Conn, player *entity.Player) *client {
	return &client{
		conn:   conn,
		player: player,
		cancel: func() {},
	}
}

func (that *client) playerID() string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.player.ID
}

func (that *client) cheatMode() bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.player.CheatMode
}

func (that *client) setPlayer(player *entity.Player) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.player = player
}

// follow - swaps the current subscription for gameID; false when gameID is already followed.
func (that *client) follow(gameID string, subscribe func(string) (<-chan *entity.Game, func())) (<-chan *entity.Game, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.gameID == gameID {
		return nil, false
	}

	that.cancel()

	updates, cancel := subscribe(gameID)
	that.gameID = gameID
	that.cancel = cancel

	return updates, true
}

func (that *client) unfollow() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.cancel()
	that.cancel = func() {}
	that.gameID = ""
}
