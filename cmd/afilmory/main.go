package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/afilmory/builder/builder"
	"github.com/afilmory/builder/cmd/flags"
	"github.com/afilmory/builder/config"
	"github.com/afilmory/builder/httpserver"
	"github.com/afilmory/builder/interfaces"
	"github.com/afilmory/builder/manifest"
	"github.com/afilmory/builder/metrics"
	"github.com/afilmory/builder/motionphoto"
	"github.com/afilmory/builder/storage"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "afilmory",
		Usage: "Build and serve photo gallery manifests",
		Flags: append([]cli.Flag{flags.LogServiceFlagFn("afilmory")}, flags.CommonFlags...),
		Commands: []*cli.Command{
			buildCommand,
			migrateCommand,
			detectCommand,
			providersCommand,
			serveCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// setup loads the configuration and opens the configured storage provider.
func setup(cCtx *cli.Context) (*slog.Logger, config.Config, interfaces.StorageProvider, error) {
	logger := flags.SetupLogger(cCtx)

	cfg, err := flags.LoadConfig(cCtx)
	if err != nil {
		logger.Error("Failed to load configuration", "err", err)
		return nil, config.Config{}, nil, err
	}

	provider, err := storage.NewDefaultRegistry(logger).CreateProvider(cfg.Storage)
	if err != nil {
		logger.Error("Failed to create storage provider", "err", err)
		return nil, config.Config{}, nil, err
	}
	return logger, cfg, provider, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var buildCommand = &cli.Command{
	Name:  "build",
	Usage: "scan storage for photos and write the manifest",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "prefix", Usage: "only scan keys below this prefix"},
		&cli.IntFlag{Name: "concurrency", Usage: "number of photos processed in parallel"},
		&cli.BoolFlag{Name: "force", Usage: "reprocess photos even when unchanged"},
		&cli.StringFlag{Name: "base-url", Usage: "public URL prefix for originals"},
		&cli.BoolFlag{Name: "strict", Usage: "fail instead of forcing the manifest version when no migration applies"},
	},
	Action: func(cCtx *cli.Context) error {
		logger, cfg, provider, err := setup(cCtx)
		if err != nil {
			return err
		}

		buildCfg := cfg.Build
		if cCtx.IsSet("prefix") {
			buildCfg.Prefix = cCtx.String("prefix")
		}
		if cCtx.IsSet("concurrency") {
			buildCfg.Concurrency = cCtx.Int("concurrency")
		}
		if cCtx.IsSet("base-url") {
			buildCfg.BaseURL = cCtx.String("base-url")
		}
		buildCfg.Force = buildCfg.Force || cCtx.Bool("force")

		recorder := metrics.Default()
		b, err := builder.New(provider, builder.Config{
			ManifestKey:  cfg.Manifest.Key,
			Prefix:       buildCfg.Prefix,
			Concurrency:  buildCfg.Concurrency,
			Force:        buildCfg.Force,
			BaseURL:      buildCfg.BaseURL,
			ThumbnailDir: buildCfg.ThumbnailDir,
			Log:          logger,
			Metrics:      recorder,
			Migrator: manifest.NewMigrator(logger,
				manifest.WithStrict(cfg.Manifest.Strict || cCtx.Bool("strict")),
				manifest.WithMetrics(recorder)),
		})
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		result, err := b.Build(ctx)
		if err != nil {
			logger.Error("Manifest build failed", "err", err)
			return err
		}

		if cfg.Manifest.Path != "" {
			if err := manifest.SaveFile(ctx, cfg.Manifest.Path, result.Manifest); err != nil {
				logger.Error("Failed to write local manifest copy", slog.String("path", cfg.Manifest.Path), "err", err)
				return err
			}
		}
		return nil
	},
}

var migrateCommand = &cli.Command{
	Name:  "migrate",
	Usage: "upgrade a stored manifest to the current version",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "file", Usage: "migrate a manifest on the local file system instead of storage"},
		&cli.BoolFlag{Name: "strict", Usage: "fail instead of forcing the manifest version when no migration applies"},
	},
	Action: func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)
		ctx, cancel := signalContext()
		defer cancel()

		if path := cCtx.String("file"); path != "" {
			migrator := manifest.NewMigrator(logger,
				manifest.WithStrict(cCtx.Bool("strict")),
				manifest.WithMetrics(metrics.Default()))
			migrated, err := manifest.MigrateFileIfNeeded(ctx, path, migrator)
			if err != nil {
				return err
			}
			logger.Info("Migration finished", slog.String("path", path), slog.Bool("migrated", migrated))
			return nil
		}

		logger, cfg, provider, err := setup(cCtx)
		if err != nil {
			return err
		}
		migrator := manifest.NewMigrator(logger,
			manifest.WithStrict(cfg.Manifest.Strict || cCtx.Bool("strict")),
			manifest.WithMetrics(metrics.Default()))

		migrated, err := manifest.MigrateObjectIfNeeded(ctx, provider, cfg.Manifest.Key, migrator)
		if err != nil {
			return err
		}
		logger.Info("Migration finished",
			slog.String("location", provider.LocationURI()),
			slog.String("key", cfg.Manifest.Key),
			slog.Bool("migrated", migrated))
		return nil
	},
}

type detection struct {
	File          string                `json:"file"`
	MotionPhoto   *motionphoto.Metadata `json:"motionPhoto,omitempty"`
	LivePhotoFile string                `json:"livePhotoVideo,omitempty"`
	Exif          map[string]any        `json:"exif,omitempty"`
}

var detectCommand = &cli.Command{
	Name:      "detect",
	Usage:     "report motion and live photo videos for local image files",
	ArgsUsage: "FILE...",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "exif", Usage: "include the decoded EXIF fields"},
	},
	Action: func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)
		if cCtx.NArg() == 0 {
			return cli.Exit("at least one file is required", 2)
		}

		enc := json.NewEncoder(cCtx.App.Writer)
		enc.SetIndent("", "  ")

		for _, file := range cCtx.Args().Slice() {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}

			fields, err := builder.ReadExif(data)
			if err != nil {
				logger.Debug("No usable EXIF data", slog.String("file", file), "err", err)
			}

			result := detection{
				File:        file,
				MotionPhoto: motionphoto.Detect(data, fields, logger),
			}
			if cCtx.Bool("exif") {
				result.Exif = fields
			}

			entries, err := os.ReadDir(filepath.Dir(file))
			if err == nil {
				names := make([]string, 0, len(entries))
				for _, entry := range entries {
					names = append(names, entry.Name())
				}
				if video, ok := motionphoto.FindLivePhotoVideo(filepath.Base(file), motionphoto.NewKeySet(names)); ok {
					result.LivePhotoFile = filepath.Join(filepath.Dir(file), video)
				}
			}

			if err := enc.Encode(result); err != nil {
				return err
			}
		}
		return nil
	},
}

var providersCommand = &cli.Command{
	Name:  "providers",
	Usage: "list storage providers and check the configured one",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "check", Usage: "connect to the configured provider"},
	},
	Action: func(cCtx *cli.Context) error {
		logger := flags.SetupLogger(cCtx)
		for _, name := range storage.NewDefaultRegistry(logger).ListRegisteredProviders() {
			fmt.Fprintln(cCtx.App.Writer, name)
		}

		if !cCtx.Bool("check") {
			return nil
		}

		logger, _, provider, err := setup(cCtx)
		if err != nil {
			return err
		}
		if !provider.Available(cCtx.Context) {
			logger.Error("Storage provider unavailable", slog.String("location", provider.LocationURI()))
			return interfaces.ErrBackendUnavailable
		}
		logger.Info("Storage provider available",
			slog.String("name", provider.Name()),
			slog.String("location", provider.LocationURI()))
		return nil
	},
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "serve the manifest and photo originals over HTTP",
	Flags: append([]cli.Flag{
		&cli.IntFlag{Name: "cache-size", Usage: "number of originals kept in memory"},
	}, flags.ServerFlags...),
	Action: func(cCtx *cli.Context) error {
		logger, cfg, provider, err := setup(cCtx)
		if err != nil {
			return err
		}

		cacheSize := cfg.Server.CacheSize
		if cCtx.IsSet("cache-size") {
			cacheSize = cCtx.Int("cache-size")
		}

		handler, err := httpserver.NewHandler(httpserver.HandlerConfig{
			Provider:    provider,
			ManifestKey: cfg.Manifest.Key,
			Providers:   storage.NewDefaultRegistry(logger).ListRegisteredProviders(),
			CacheSize:   cacheSize,
			Metrics:     metrics.Default(),
			Log:         logger,
		})
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		// Serve health endpoints even if the manifest is not built yet
		if err := handler.Reload(ctx); err != nil {
			logger.Warn("Starting without a manifest", "err", err)
		}

		server, err := httpserver.New(flags.ConfigureServer(cCtx, logger, cfg.Server), handler)
		if err != nil {
			logger.Error("Failed to create server", "err", err)
			return err
		}
		server.RunInBackground()

		<-ctx.Done()
		logger.Info("Shutting down")

		drainCtx, drainCancel := signalContext()
		defer drainCancel()
		server.Drain(drainCtx)
		server.Shutdown()
		return nil
	},
}
