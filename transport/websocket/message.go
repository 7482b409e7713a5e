package websocket

import (
	"encoding/json"

	"github.com/rocketscienceinc/memorymatch-backend/internal/entity"
	"github.com/rocketscienceinc/memorymatch-backend/internal/memory"
)

const (
	actionConnect    = "connect"
	actionGameState  = "game:state"
	actionCardSelect = "card:select"
	actionGameReset  = "game:reset"
	actionCheatSet   = "cheat:set"
	actionGameUpdate = "game:update"
)

// Message is a client request: an action with its raw payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is what the server writes back, either to a request or as a push.
type Response struct {
	Action  string          `json:"action"`
	Payload ResponsePayload `json:"payload"`
}

type ResponsePayload struct {
	Player *entity.Player   `json:"player,omitempty"`
	Game   *memory.GameView `json:"game,omitempty"`
	Error  string           `json:"error,omitempty"`
}

type selectPayload struct {
	Position *int `json:"position" validate:"required"`
}

type cheatPayload struct {
	Enabled *bool `json:"enabled" validate:"required"`
}
