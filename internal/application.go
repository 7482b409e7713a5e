package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rocketscienceinc/memorymatch-backend/internal/config"
	"github.com/rocketscienceinc/memorymatch-backend/internal/repository"
	"github.com/rocketscienceinc/memorymatch-backend/internal/repository/storage"
	"github.com/rocketscienceinc/memorymatch-backend/internal/service"
	"github.com/rocketscienceinc/memorymatch-backend/internal/usecase"
	"github.com/rocketscienceinc/memorymatch-backend/transport/rest"
	"github.com/rocketscienceinc/memorymatch-backend/transport/websocket"
)

const shutdownTimeout = 5 * time.Second

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application until a signal arrives or a server fails.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	go func() {
		select {
		case sig := <-sigs:
			log.Info("Received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	redisAddrString := conf.Redis.GetRedisAddr()
	if redisAddrString == "" {
		return ErrAddrNotFound
	}

	redisStorage, err := storage.New(ctx, redisAddrString)
	if err != nil {
		return fmt.Errorf("could not connect to redis storage: %w", err)
	}

	defer func() {
		if err = redisStorage.Close(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}()

	playerRepo := repository.NewPlayerRepository(redisStorage.Connection, conf.Game.SessionTTL)
	gameRepo := repository.NewGameRepository(redisStorage.Connection, conf.Game.SessionTTL)

	playerService := service.NewPlayerService(playerRepo)
	gameService := service.NewGameService(gameRepo)

	gameManager := usecase.NewGameManager(logger, usecase.Settings{
		HideDelay:        conf.Game.HideDelay,
		DefaultCheatMode: conf.Game.CheatMode,
	}, playerService, gameService)
	defer gameManager.Close()

	restServer := rest.New(logger, gameManager, conf.ClientOrigin)
	wsServer := websocket.New(logger, gameManager, conf.ClientOrigin)

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		httpErrCh <- restServer.Start(conf.HTTPPort)
	}()

	// run Websocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		wsErrCh <- wsServer.Start(conf.SocketPort)
	}()

	var runErr error

	select {
	case err = <-httpErrCh:
		runErr = fmt.Errorf("HTTP server error: %w", err)
	case err = <-wsErrCh:
		runErr = fmt.Errorf("WebSocket server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err = restServer.Shutdown(shutdownCtx); err != nil {
		log.Error("could not shutdown HTTP server", "error", err)
	}

	if err = wsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("could not shutdown WebSocket server", "error", err)
	}

	return runErr
}
