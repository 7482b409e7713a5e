package websocket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rocketscienceinc/memorymatch-backend/internal/apperror"
	"github.com/rocketscienceinc/memorymatch-backend/internal/entity"
	"github.com/rocketscienceinc/memorymatch-backend/internal/memory"
	"github.com/rocketscienceinc/memorymatch-backend/internal/pkg"
	"github.com/rocketscienceinc/memorymatch-backend/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGameManager struct {
	mock.Mock
}

func (that *mockGameManager) GetOrCreatePlayer(ctx context.Context, id string) (*entity.Player, error) {
	args := that.Called(ctx, id)
	player, _ := args.Get(0).(*entity.Player)
	return player, args.Error(1)
}

func (that *mockGameManager) GetPlayer(ctx context.Context, id string) (*entity.Player, error) {
	args := that.Called(ctx, id)
	player, _ := args.Get(0).(*entity.Player)
	return player, args.Error(1)
}

func (that *mockGameManager) GetOrCreateGame(ctx context.Context, playerID string) (*usecase.Session, error) {
	args := that.Called(ctx, playerID)
	session, _ := args.Get(0).(*usecase.Session)
	return session, args.Error(1)
}

func (that *mockGameManager) SelectCard(ctx context.Context, playerID string, position int) (*usecase.Session, error) {
	args := that.Called(ctx, playerID, position)
	session, _ := args.Get(0).(*usecase.Session)
	return session, args.Error(1)
}

func (that *mockGameManager) Reset(ctx context.Context, playerID string) (*usecase.Session, error) {
	args := that.Called(ctx, playerID)
	session, _ := args.Get(0).(*usecase.Session)
	return session, args.Error(1)
}

func (that *mockGameManager) SetCheatMode(ctx context.Context, playerID string, enabled bool) (*usecase.Session, error) {
	args := that.Called(ctx, playerID, enabled)
	session, _ := args.Get(0).(*usecase.Session)
	return session, args.Error(1)
}

func (that *mockGameManager) Subscribe(gameID string) (<-chan *entity.Game, func()) {
	args := that.Called(gameID)
	return args.Get(0).(<-chan *entity.Game), args.Get(1).(func())
}

type headSource struct{}

func (headSource) IntN(int) int { return 0 }

type feed struct {
	ch   chan *entity.Game
	once sync.Once
}

func newFeed() *feed {
	return &feed{ch: make(chan *entity.Game, 4)}
}

func (that *feed) updates() <-chan *entity.Game {
	return that.ch
}

func (that *feed) cancel() {
	that.once.Do(func() { close(that.ch) })
}

func newSession(player *entity.Player) *usecase.Session {
	engine := memory.NewEngine("g1", memory.Settings{Source: headSource{}})
	defer engine.Close()

	return &usecase.Session{Player: player, Game: engine.Snapshot()}
}

func startServer(t *testing.T, manager *mockGameManager) string {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := New(logger, manager, "http://localhost:5173")

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = server.Shutdown(context.Background())
	})

	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, url, sessionID string) (*websocket.Conn, *http.Response) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	opts := &websocket.DialOptions{}
	if sessionID != "" {
		opts.HTTPHeader = http.Header{"Cookie": {pkg.SessionCookieName + "=" + sessionID}}
	}

	conn, resp, err := websocket.Dial(ctx, url, opts)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })

	return conn, resp
}

func exchange(t *testing.T, conn *websocket.Conn, msg any) Response {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, wsjson.Write(ctx, conn, msg))

	return read(t, conn)
}

func read(t *testing.T, conn *websocket.Conn) Response {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var resp Response
	require.NoError(t, wsjson.Read(ctx, conn, &resp))

	return resp
}

func TestConnect(t *testing.T) {
	t.Run("Issues a session cookie and returns the game", func(t *testing.T) {
		// Given: a browser without a session
		manager := &mockGameManager{}
		player := &entity.Player{ID: "p1"}
		updates := newFeed()

		manager.On("GetOrCreatePlayer", mock.Anything, "").Return(player, nil).Once()
		manager.On("GetOrCreateGame", mock.Anything, "p1").Return(newSession(player), nil).Once()
		manager.On("Subscribe", "g1").Return(updates.updates(), updates.cancel).Once()

		conn, resp := dial(t, startServer(t, manager), "")

		// When: it connects
		reply := exchange(t, conn, Message{Action: actionConnect})

		// Then: the handshake carried the new cookie and the reply carries the game
		cookies := resp.Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "p1", cookies[0].Value)

		assert.Equal(t, actionConnect, reply.Action)
		assert.Empty(t, reply.Payload.Error)
		require.NotNil(t, reply.Payload.Game)
		assert.Equal(t, "g1", reply.Payload.Game.ID)
		assert.Equal(t, "p1", reply.Payload.Player.ID)
		assert.Len(t, reply.Payload.Game.Cards, entity.DeckSize)
	})

	t.Run("Pushes timer-driven updates", func(t *testing.T) {
		// Given: a connected client following g1
		manager := &mockGameManager{}
		player := &entity.Player{ID: "p1"}
		updates := newFeed()

		manager.On("GetOrCreatePlayer", mock.Anything, "p1").Return(player, nil).Once()
		manager.On("GetOrCreateGame", mock.Anything, "p1").Return(newSession(player), nil).Twice()
		manager.On("Subscribe", "g1").Return(updates.updates(), updates.cancel).Once()
		manager.On("GetPlayer", mock.Anything, "p1").Return(player, nil).Once()

		conn, _ := dial(t, startServer(t, manager), "p1")
		exchange(t, conn, Message{Action: actionConnect})
		exchange(t, conn, Message{Action: actionGameState})

		// When: the engine hides a mismatch
		hidden := newSession(player).Game
		hidden.IncorrectAttempts = 1
		updates.ch <- hidden

		// Then: the client receives a game:update
		push := read(t, conn)
		assert.Equal(t, actionGameUpdate, push.Action)
		require.NotNil(t, push.Payload.Game)
		assert.Equal(t, 1, push.Payload.Game.IncorrectAttempts)

		manager.AssertNumberOfCalls(t, "Subscribe", 1)
	})
}

func TestPushFollowsStoredCheatMode(t *testing.T) {
	t.Run("Cheat mode switched on elsewhere shows in pushes", func(t *testing.T) {
		// Given: a client connected without cheat mode
		manager := &mockGameManager{}
		player := &entity.Player{ID: "p1"}
		updates := newFeed()

		manager.On("GetOrCreatePlayer", mock.Anything, "p1").Return(player, nil).Once()
		manager.On("GetOrCreateGame", mock.Anything, "p1").Return(newSession(player), nil).Once()
		manager.On("Subscribe", "g1").Return(updates.updates(), updates.cancel).Once()

		conn, _ := dial(t, startServer(t, manager), "p1")
		reply := exchange(t, conn, Message{Action: actionConnect})
		require.NotNil(t, reply.Payload.Game)
		assert.Empty(t, reply.Payload.Game.Cards[0].Hint)

		// When: cheat mode was stored through another channel and a hide is pushed
		manager.On("GetPlayer", mock.Anything, "p1").Return(&entity.Player{ID: "p1", CheatMode: true}, nil).Once()
		updates.ch <- newSession(player).Game

		// Then: the push carries hints
		push := read(t, conn)
		require.NotNil(t, push.Payload.Game)
		assert.True(t, push.Payload.Game.CheatMode)
		assert.Equal(t, "red A", push.Payload.Game.Cards[0].Hint)
	})

	t.Run("Falls back to the connection's player when the lookup fails", func(t *testing.T) {
		manager := &mockGameManager{}
		player := &entity.Player{ID: "p1"}
		updates := newFeed()

		manager.On("GetOrCreatePlayer", mock.Anything, "p1").Return(player, nil).Once()
		manager.On("GetOrCreateGame", mock.Anything, "p1").Return(newSession(player), nil).Once()
		manager.On("Subscribe", "g1").Return(updates.updates(), updates.cancel).Once()
		manager.On("GetPlayer", mock.Anything, "p1").Return(nil, errors.New("redis down")).Once()

		conn, _ := dial(t, startServer(t, manager), "p1")
		exchange(t, conn, Message{Action: actionConnect})

		updates.ch <- newSession(player).Game

		push := read(t, conn)
		require.NotNil(t, push.Payload.Game)
		assert.False(t, push.Payload.Game.CheatMode)
		assert.Empty(t, push.Payload.Game.Cards[0].Hint)
	})
}

func TestCardSelect(t *testing.T) {
	t.Run("Selects the card", func(t *testing.T) {
		manager := &mockGameManager{}
		player := &entity.Player{ID: "p1"}
		updates := newFeed()
		session := newSession(player)
		session.Game.Cards[0].IsVisible = true
		session.Game.Selected = []int{0}

		manager.On("GetOrCreatePlayer", mock.Anything, "p1").Return(player, nil).Once()
		manager.On("SelectCard", mock.Anything, "p1", 0).Return(session, nil).Once()
		manager.On("Subscribe", "g1").Return(updates.updates(), updates.cancel).Once()

		conn, _ := dial(t, startServer(t, manager), "p1")

		reply := exchange(t, conn, map[string]any{
			"action":  actionCardSelect,
			"payload": map[string]int{"position": 0},
		})

		assert.Equal(t, actionCardSelect, reply.Action)
		require.NotNil(t, reply.Payload.Game)
		assert.Equal(t, []int{0}, reply.Payload.Game.Selected)
		assert.Equal(t, entity.ColorRed, reply.Payload.Game.Cards[0].Color)
	})

	t.Run("Requires a position", func(t *testing.T) {
		manager := &mockGameManager{}
		manager.On("GetOrCreatePlayer", mock.Anything, "p1").Return(&entity.Player{ID: "p1"}, nil).Once()

		conn, _ := dial(t, startServer(t, manager), "p1")

		reply := exchange(t, conn, map[string]any{
			"action":  actionCardSelect,
			"payload": map[string]any{},
		})

		assert.Equal(t, actionCardSelect, reply.Action)
		assert.Equal(t, apperror.ErrMalformedRequest.Error(), reply.Payload.Error)
		manager.AssertNotCalled(t, "SelectCard", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestCheatSet(t *testing.T) {
	// Given: a client switching cheat mode on
	manager := &mockGameManager{}
	player := &entity.Player{ID: "p1"}
	cheater := &entity.Player{ID: "p1", CheatMode: true}
	updates := newFeed()

	manager.On("GetOrCreatePlayer", mock.Anything, "p1").Return(player, nil).Once()
	manager.On("SetCheatMode", mock.Anything, "p1", true).Return(newSession(cheater), nil).Once()
	manager.On("Subscribe", "g1").Return(updates.updates(), updates.cancel).Once()
	manager.On("GetPlayer", mock.Anything, "p1").Return(cheater, nil).Once()

	conn, _ := dial(t, startServer(t, manager), "p1")

	// When: the setting is stored
	reply := exchange(t, conn, map[string]any{
		"action":  actionCheatSet,
		"payload": map[string]bool{"enabled": true},
	})

	// Then: replies and pushes carry hints
	require.NotNil(t, reply.Payload.Game)
	assert.True(t, reply.Payload.Game.CheatMode)
	assert.Equal(t, "red A", reply.Payload.Game.Cards[0].Hint)

	updates.ch <- newSession(cheater).Game

	push := read(t, conn)
	require.NotNil(t, push.Payload.Game)
	assert.Equal(t, "red A", push.Payload.Game.Cards[0].Hint)
}

func TestGameReset(t *testing.T) {
	manager := &mockGameManager{}
	player := &entity.Player{ID: "p1"}
	updates := newFeed()
	session := newSession(player)
	session.Game.Round = 2

	manager.On("GetOrCreatePlayer", mock.Anything, "p1").Return(player, nil).Once()
	manager.On("Reset", mock.Anything, "p1").Return(session, nil).Once()
	manager.On("Subscribe", "g1").Return(updates.updates(), updates.cancel).Once()

	conn, _ := dial(t, startServer(t, manager), "p1")

	reply := exchange(t, conn, Message{Action: actionGameReset})

	require.NotNil(t, reply.Payload.Game)
	assert.Equal(t, 2, reply.Payload.Game.Round)
}

func TestErrors(t *testing.T) {
	t.Run("Unknown action", func(t *testing.T) {
		manager := &mockGameManager{}
		manager.On("GetOrCreatePlayer", mock.Anything, "p1").Return(&entity.Player{ID: "p1"}, nil).Once()

		conn, _ := dial(t, startServer(t, manager), "p1")

		reply := exchange(t, conn, Message{Action: "game:leave"})

		assert.Equal(t, "game:leave", reply.Action)
		assert.Equal(t, apperror.ErrUnknownAction.Error(), reply.Payload.Error)
	})

	t.Run("Malformed message keeps the connection open", func(t *testing.T) {
		manager := &mockGameManager{}
		player := &entity.Player{ID: "p1"}
		updates := newFeed()

		manager.On("GetOrCreatePlayer", mock.Anything, "p1").Return(player, nil).Once()
		manager.On("GetOrCreateGame", mock.Anything, "p1").Return(newSession(player), nil).Once()
		manager.On("Subscribe", "g1").Return(updates.updates(), updates.cancel).Once()

		conn, _ := dial(t, startServer(t, manager), "p1")

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{")))

		reply := read(t, conn)
		assert.Equal(t, apperror.ErrMalformedRequest.Error(), reply.Payload.Error)

		reply = exchange(t, conn, Message{Action: actionGameState})
		assert.Empty(t, reply.Payload.Error)
	})

	t.Run("Storage failures are not leaked", func(t *testing.T) {
		manager := &mockGameManager{}
		manager.On("GetOrCreatePlayer", mock.Anything, "p1").Return(&entity.Player{ID: "p1"}, nil).Once()
		manager.On("GetOrCreateGame", mock.Anything, "p1").Return(nil, errors.New("redis down")).Once()

		conn, _ := dial(t, startServer(t, manager), "p1")

		reply := exchange(t, conn, Message{Action: actionGameState})

		assert.Equal(t, "internal error", reply.Payload.Error)
	})

	t.Run("Closed manager", func(t *testing.T) {
		manager := &mockGameManager{}
		manager.On("GetOrCreatePlayer", mock.Anything, "p1").Return(&entity.Player{ID: "p1"}, nil).Once()
		manager.On("Reset", mock.Anything, "p1").Return(nil, apperror.ErrManagerClosed).Once()

		conn, _ := dial(t, startServer(t, manager), "p1")

		reply := exchange(t, conn, Message{Action: actionGameReset})

		assert.Equal(t, apperror.ErrManagerClosed.Error(), reply.Payload.Error)
	})
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t, []string{"localhost:5173"}, originPatterns("http://localhost:5173"))
	assert.Nil(t, originPatterns(""))
}
