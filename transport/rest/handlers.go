package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rocketscienceinc/memorymatch-backend/internal/apperror"
	"github.com/rocketscienceinc/memorymatch-backend/internal/entity"
	"github.com/rocketscienceinc/memorymatch-backend/internal/pkg"
	"github.com/rocketscienceinc/memorymatch-backend/internal/repository"
	"github.com/rocketscienceinc/memorymatch-backend/internal/usecase"
)

type gameManager interface {
	GetOrCreatePlayer(ctx context.Context, id string) (*entity.Player, error)

	GetOrCreateGame(ctx context.Context, playerID string) (*usecase.Session, error)
	SelectCard(ctx context.Context, playerID string, position int) (*usecase.Session, error)
	Reset(ctx context.Context, playerID string) (*usecase.Session, error)

	SetCheatMode(ctx context.Context, playerID string, enabled bool) (*usecase.Session, error)
}

type ctxPlayerKey struct{}

type errorResponse struct {
	Error string `json:"error"`
}

type cheatModeRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// withSession - resolves the session cookie to a player, issuing a new cookie when needed.
func (that *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := pkg.SessionID(r)

		player, err := that.manager.GetOrCreatePlayer(r.Context(), sessionID)
		if err != nil {
			that.writeError(w, err)
			return
		}

		if player.ID != sessionID {
			http.SetCookie(w, pkg.NewSessionCookie(player.ID))
		}

		ctx := context.WithValue(r.Context(), ctxPlayerKey{}, player)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func playerFrom(r *http.Request) *entity.Player {
	player, _ := r.Context().Value(ctxPlayerKey{}).(*entity.Player)
	if player == nil {
		return &entity.Player{}
	}

	return player
}

func (that *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, playerFrom(r))
}

func (that *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	session, err := that.manager.GetOrCreateGame(r.Context(), playerFrom(r).ID)
	if err != nil {
		that.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session.View())
}

func (that *Server) handleSelectCard(w http.ResponseWriter, r *http.Request) {
	position, err := strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil {
		that.writeError(w, apperror.ErrInvalidPosition)
		return
	}

	session, err := that.manager.SelectCard(r.Context(), playerFrom(r).ID, position)
	if err != nil {
		that.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session.View())
}

func (that *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	session, err := that.manager.Reset(r.Context(), playerFrom(r).ID)
	if err != nil {
		that.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session.View())
}

func (that *Server) handleCheatMode(w http.ResponseWriter, r *http.Request) {
	var req cheatModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		that.writeError(w, apperror.ErrMalformedRequest)
		return
	}

	if err := that.validate.Struct(req); err != nil {
		that.writeError(w, apperror.ErrMalformedRequest)
		return
	}

	session, err := that.manager.SetCheatMode(r.Context(), playerFrom(r).ID, *req.Enabled)
	if err != nil {
		that.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session.View())
}

func (that *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, apperror.ErrInvalidPosition), errors.Is(err, apperror.ErrMalformedRequest):
		status = http.StatusBadRequest
	case errors.Is(err, apperror.ErrMissingSession):
		status = http.StatusUnauthorized
	case errors.Is(err, repository.ErrPlayerNotFound), errors.Is(err, repository.ErrGameNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperror.ErrManagerClosed):
		status = http.StatusServiceUnavailable
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		that.logger.Error("request failed", "error", err)
		message = http.StatusText(status)
	}

	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
