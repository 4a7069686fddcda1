package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/snapbooth/server/internal/controller"
	"github.com/snapbooth/server/internal/merge"
	"github.com/snapbooth/server/internal/repository/connection/inmemory"
	"github.com/snapbooth/server/internal/repository/room/redis"
	"github.com/snapbooth/server/internal/service/room"
	"github.com/snapbooth/server/pkg/ctxlogger"
	"github.com/snapbooth/server/pkg/redisclient"
)

type AppConfig struct {
	Host              string        `json:"host"`
	Port              int           `json:"port"`
	LogLevel          string        `json:"log_level"`
	RedisHost         string        `json:"redis_host"`
	RedisPort         int           `json:"redis_port"`
	RedisPassword     string        `json:"-"`
	MergeBaseUrl      string        `json:"merge_base_url"`
	RoomCodeLength    int           `json:"room_code_length"`
	CountdownFrom     int           `json:"countdown_from"`
	CountdownInterval time.Duration `json:"countdown_interval"`
	RoomExpire        time.Duration `json:"room_expire"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.RoomCodeLength < 4 {
		return fmt.Errorf("room code length must be at least 4")
	}
	if cfg.CountdownFrom < 1 {
		return fmt.Errorf("countdown must start from at least 1")
	}
	if cfg.CountdownInterval <= 0 {
		return fmt.Errorf("countdown interval must be positive")
	}
	if cfg.MergeBaseUrl == "" {
		return fmt.Errorf("merge service base url is required")
	}
	return nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		log.Fatal(err)
	}

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	logger := slog.New(&h)

	rc, err := redisclient.NewRedisClient(&redisclient.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to create redis client: %w", err)
	}
	defer rc.Close()

	roomRepo := redis.NewRepo(rc, cfg.RoomExpire, logger)
	connRepo := inmemory.NewRepo(logger)
	roomService := room.NewService(roomRepo, connRepo, room.Config{
		CountdownFrom:     cfg.CountdownFrom,
		CountdownInterval: cfg.CountdownInterval,
		RoomCodeLength:    cfg.RoomCodeLength,
	}, logger)
	merger := merge.NewClient(cfg.MergeBaseUrl)
	controller := controller.NewController(roomService, merger, logger)
	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: controller.GetMux()}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, c := context.WithTimeout(serverCtx, 30*time.Second)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		err := server.Shutdown(shutdownCtx)
		if err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	logger.InfoContext(serverCtx, "starting server", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	<-serverCtx.Done()

	return nil
}
