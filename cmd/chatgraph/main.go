// Command chatgraph runs the conversation engine as an HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/joho/godotenv"
	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/chatgraph"
	"github.com/hupe1980/chatgraph/checkpoint"
	"github.com/hupe1980/chatgraph/config"
	"github.com/hupe1980/chatgraph/logging"
	"github.com/hupe1980/chatgraph/model"
	"github.com/hupe1980/chatgraph/model/anthropic"
	"github.com/hupe1980/chatgraph/model/openai"
	"github.com/hupe1980/chatgraph/server"
	"github.com/hupe1980/chatgraph/tool"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// Optional .env for local development; absence is fine.
	_ = godotenv.Load()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.New(&logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})

	chatModel, err := buildModel(cfg)
	if err != nil {
		return err
	}

	store, cleanup, err := buildStore(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	cg, err := chatgraph.New(chatModel, func(o *chatgraph.Options) {
		o.WeatherTool = tool.NewWeatherTool(cfg.Tools.OpenWeatherAPIKey)
		o.NewsTool = tool.NewNewsTool(cfg.Tools.NewsAPIKey)
		o.CheckpointStore = store
		o.Logger = logger
		if cfg.Engine.MaxSteps > 0 {
			o.MaxSteps = cfg.Engine.MaxSteps
		}
	})
	if err != nil {
		return err
	}

	srv := server.New(cg.Executor(), func(o *server.Options) {
		o.Addr = cfg.Server.Addr
		o.Logger = logger
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

func buildModel(cfg *config.Config) (model.Model, error) {
	switch cfg.Model.Provider {
	case "openai":
		var clientOpts []option.RequestOption
		if cfg.Model.APIKey != "" {
			clientOpts = append(clientOpts, option.WithAPIKey(cfg.Model.APIKey))
		}
		client := openaisdk.NewClient(clientOpts...)
		return openai.NewModelFromClient(&client, func(o *openai.Options) {
			o.Model = cfg.Model.Name
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(cfg.Model.Name)
			o.APIKey = cfg.Model.APIKey
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Model.Provider)
	}
}

func buildStore(cfg *config.Config, logger logging.Logger) (checkpoint.Store, func(), error) {
	if cfg.Checkpoint.RedisAddr == "" {
		logger.Info("using in-memory checkpoint store")
		return checkpoint.NewInMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Checkpoint.RedisAddr,
		Password: cfg.Checkpoint.RedisPassword,
		DB:       cfg.Checkpoint.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}

	logger.Info("using redis checkpoint store", "addr", cfg.Checkpoint.RedisAddr)

	store := checkpoint.NewRedisStore(client, func(o *checkpoint.RedisStoreOptions) {
		if cfg.Checkpoint.KeyPrefix != "" {
			o.KeyPrefix = cfg.Checkpoint.KeyPrefix
		}
	})
	return store, func() { _ = client.Close() }, nil
}
