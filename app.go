package main

import (
	"context"
	"fmt"

	"fetchr/chatlog"
	"fetchr/config"
	"fetchr/objectstore"
	"fetchr/provider"
	"fetchr/storage"
	"fetchr/tools"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// rowStore is what both storage backends provide.
type rowStore interface {
	chatlog.RowStore
	List(ctx context.Context) ([]storage.ChatMetadata, error)
	Close() error
}

// app holds the services shared by every command.
type app struct {
	cfg      *config.Config
	logger   *zap.SugaredLogger
	registry *tools.Registry
	rows     rowStore
	chats    *chatlog.Service
}

func setup(cmd *cli.Command) (*app, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := cmd.String("config"); path != "" {
		cfg, err = config.LoadPath(config.ExpandPath(path))
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Bool("debug") {
		cfg.Debug = true
	}

	logger, err := config.NewLogger(cfg.Debug, cfg.LogFile)
	if err != nil {
		return nil, err
	}

	rows, err := openRows(cfg)
	if err != nil {
		return nil, err
	}

	registry := tools.Default()
	cache := storage.NewTTLCache(cfg.Storage.CacheSize, cfg.Storage.CacheTTL)
	chats := chatlog.NewService(rows, cache, registry, chatlog.WithLogger(logger))

	logger.Debugw("Initialized", "dataDir", cfg.DataDir(), "storage", cfg.Storage.Backend, "provider", cfg.Provider.Type)
	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		rows:     rows,
		chats:    chats,
	}, nil
}

func openRows(cfg *config.Config) (rowStore, error) {
	switch cfg.Storage.Backend {
	case config.StorageFiles:
		store, err := storage.NewFileStore(cfg.DataDir())
		if err != nil {
			return nil, fmt.Errorf("failed to open chat files: %w", err)
		}
		return store, nil
	default:
		store, err := storage.NewChatStore(cfg.DataDir())
		if err != nil {
			return nil, fmt.Errorf("failed to open chat database: %w", err)
		}
		return store, nil
	}
}

// fetcher resolves image URLs through the configured bucket, or over plain
// HTTP when none is configured.
func (a *app) fetcher() (objectstore.Fetcher, error) {
	if !a.cfg.ImagesEnabled() {
		return objectstore.NewHTTPFetcher(nil), nil
	}
	client, err := objectstore.New(a.cfg.ObjectStore(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	return client, nil
}

func (a *app) provider() (provider.Provider, error) {
	fetcher, err := a.fetcher()
	if err != nil {
		return nil, err
	}
	return provider.NewProvider(a.cfg.ProviderSettings(),
		provider.WithRegistry(a.registry),
		provider.WithFetcher(fetcher),
		provider.WithLogger(a.logger))
}

func (a *app) Close() {
	if err := a.rows.Close(); err != nil {
		a.logger.Warnw("Failed to close chat store", "error", err)
	}
	_ = a.logger.Sync()
}
