package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rocketscienceinc/memorymatch-backend/internal/apperror"
	"github.com/rocketscienceinc/memorymatch-backend/internal/entity"
	"github.com/rocketscienceinc/memorymatch-backend/internal/memory"
	"github.com/rocketscienceinc/memorymatch-backend/internal/repository"
	"github.com/rocketscienceinc/memorymatch-backend/internal/usecase"
)

// handleMessages - processes messages from the client until it disconnects.
func (that *Server) handleMessages(ctx context.Context, client *client) error {
	log := that.logger.With("method", "handleMessages", "player", client.playerID())

	for {
		_, data, err := client.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure ||
				websocket.CloseStatus(err) == websocket.StatusGoingAway {
				return nil
			}

			return fmt.Errorf("failed to read message: %w", err)
		}

		var message Message
		if err = json.Unmarshal(data, &message); err != nil {
			log.Warn("failed to unmarshal message", "error", err)
			that.sendError(ctx, client, "", apperror.ErrMalformedRequest)
			continue
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			log.Warn("unknown action", "action", message.Action)
			that.sendError(ctx, client, message.Action, apperror.ErrUnknownAction)
			continue
		}

		if err = handler(ctx, client, &message); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
			that.sendError(ctx, client, message.Action, err)
		}
	}
}

func (that *Server) handleConnect(ctx context.Context, client *client, msg *Message) error {
	session, err := that.manager.GetOrCreateGame(ctx, client.playerID())
	if err != nil {
		return fmt.Errorf("failed to get game: %w", err)
	}

	return that.reply(ctx, client, msg.Action, session)
}

func (that *Server) handleGameState(ctx context.Context, client *client, msg *Message) error {
	session, err := that.manager.GetOrCreateGame(ctx, client.playerID())
	if err != nil {
		return fmt.Errorf("failed to get game: %w", err)
	}

	return that.reply(ctx, client, msg.Action, session)
}

func (that *Server) handleCardSelect(ctx context.Context, client *client, msg *Message) error {
	var payload selectPayload
	if err := that.decode(msg, &payload); err != nil {
		return err
	}

	session, err := that.manager.SelectCard(ctx, client.playerID(), *payload.Position)
	if err != nil {
		return fmt.Errorf("failed to select card: %w", err)
	}

	return that.reply(ctx, client, msg.Action, session)
}

func (that *Server) handleGameReset(ctx context.Context, client *client, msg *Message) error {
	session, err := that.manager.Reset(ctx, client.playerID())
	if err != nil {
		return fmt.Errorf("failed to reset game: %w", err)
	}

	return that.reply(ctx, client, msg.Action, session)
}

func (that *Server) handleCheatSet(ctx context.Context, client *client, msg *Message) error {
	var payload cheatPayload
	if err := that.decode(msg, &payload); err != nil {
		return err
	}

	session, err := that.manager.SetCheatMode(ctx, client.playerID(), *payload.Enabled)
	if err != nil {
		return fmt.Errorf("failed to set cheat mode: %w", err)
	}

	return that.reply(ctx, client, msg.Action, session)
}

func (that *Server) decode(msg *Message, v any) error {
	if len(msg.Payload) == 0 {
		return apperror.ErrMalformedRequest
	}

	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("%w: %w", apperror.ErrMalformedRequest, err)
	}

	if err := that.validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", apperror.ErrMalformedRequest, err)
	}

	return nil
}

// reply - answers a request and makes sure the client follows the session's game.
func (that *Server) reply(ctx context.Context, client *client, action string, session *usecase.Session) error {
	client.setPlayer(session.Player)

	if updates, ok := client.follow(session.Game.ID, that.manager.Subscribe); ok {
		go that.forward(ctx, client, updates)
	}

	return that.send(ctx, client, Response{
		Action: action,
		Payload: ResponsePayload{
			Player: session.Player,
			Game:   session.View(),
		},
	})
}

// forward - pushes timer-driven updates until the subscription is cancelled.
func (that *Server) forward(ctx context.Context, client *client, updates <-chan *entity.Game) {
	for game := range updates {
		resp := Response{
			Action:  actionGameUpdate,
			Payload: ResponsePayload{Game: memory.BuildView(game, that.cheatMode(ctx, client))},
		}

		if err := that.send(ctx, client, resp); err != nil {
			that.logger.Warn("failed to push game update", "game", game.ID, "error", err)
			return
		}
	}
}

// cheatMode - the stored flag, which REST may have changed since this connection last replied.
func (that *Server) cheatMode(ctx context.Context, client *client) bool {
	player, err := that.manager.GetPlayer(ctx, client.playerID())
	if err != nil {
		that.logger.Warn("failed to refresh player, using the cached one", "player", client.playerID(), "error", err)
		return client.cheatMode()
	}

	client.setPlayer(player)

	return player.CheatMode
}

func (that *Server) sendError(ctx context.Context, client *client, action string, err error) {
	if err = that.send(ctx, client, Response{
		Action:  action,
		Payload: ResponsePayload{Error: errorMessage(err)},
	}); err != nil {
		that.logger.Warn("failed to send error response", "action", action, "error", err)
	}
}

func (that *Server) send(ctx context.Context, client *client, resp Response) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := wsjson.Write(ctx, client.conn, resp); err != nil {
		return fmt.Errorf("failed to write %s: %w", resp.Action, err)
	}

	return nil
}

// errorMessage - the text a client may see; plumbing failures stay in the log.
func errorMessage(err error) string {
	for _, known := range []error{
		apperror.ErrMalformedRequest,
		apperror.ErrUnknownAction,
		apperror.ErrInvalidPosition,
		apperror.ErrMissingSession,
		apperror.ErrManagerClosed,
		repository.ErrGameNotFound,
		repository.ErrPlayerNotFound,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}

	return "internal error"
}
