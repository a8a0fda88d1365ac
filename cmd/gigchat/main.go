package main

import (
	"flag"
	"log"

	"github.com/gigline/gigchat/internal/auth"
	"github.com/gigline/gigchat/internal/config"
	"github.com/gigline/gigchat/internal/logging"
	"github.com/gigline/gigchat/internal/scheduler"
	"github.com/gigline/gigchat/internal/service"
	"github.com/gigline/gigchat/internal/transport/rest"
	"github.com/gigline/gigchat/internal/tui"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	recipient := flag.String("to", "", "counterparty id to open (overrides config)")
	token := flag.String("token", "", "bearer token (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *recipient != "" {
		cfg.Chat.Counterparty = *recipient
	}
	if *token != "" {
		cfg.Auth.Token = *token
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer logger.Sync()

	// Identity comes from the externally issued token; the id can be
	// pinned in config when the token's subject is not the chat user id.
	authCtx, err := auth.FromToken(cfg.Auth.Token)
	if err != nil {
		logger.Fatalw("authentication required", "error", err)
	}
	if cfg.Auth.UserID != "" {
		authCtx.UserID = cfg.Auth.UserID
	}

	client := rest.NewClient(rest.Options{
		BaseURL: cfg.Server.BaseURL,
		Token:   authCtx.Token,
		UserID:  authCtx.UserID,
		Timeout: cfg.RequestTimeout,
		Logger:  logger,
	})

	engine := service.NewConversationSync(client, scheduler.NewInterval(), authCtx, service.Options{
		PollInterval: cfg.PollInterval,
		Logger:       logger,
	})

	logger.Infow("starting gigchat", "server", cfg.Server.BaseURL, "user", authCtx.UserID)

	if err := tui.Run(tui.Options{
		Client:       client,
		Sync:         engine,
		Counterparty: cfg.Chat.Counterparty,
		Logger:       logger,
	}); err != nil {
		logger.Fatalw("ui exited with error", "error", err)
	}
}
