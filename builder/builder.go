// Package builder scans a storage provider for photos and produces the
// photo manifest.
package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/afilmory/builder/interfaces"
	"github.com/afilmory/builder/manifest"
	"github.com/afilmory/builder/metrics"
	"github.com/afilmory/builder/motionphoto"
	"github.com/google/uuid"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency  = 8
	defaultThumbnailDir = "thumbnails"
)

type Config struct {
	ManifestKey string
	// Prefix restricts the scan to keys below it. It is not part of the tags.
	Prefix       string
	Concurrency  int
	Force        bool
	BaseURL      string
	ThumbnailDir string

	Log      *slog.Logger
	Migrator *manifest.Migrator
	Metrics  *metrics.Recorder
}

// Result summarises one build.
type Result struct {
	RunID    string
	Manifest *manifest.Manifest
	Migrated bool

	Processed int
	Reused    int
	Failed    int
	Removed   int
	Sidecars  int
	Duration  time.Duration
}

type Builder struct {
	cfg      Config
	provider interfaces.StorageProvider
	log      *slog.Logger
	migrator *manifest.Migrator
	metrics  *metrics.Recorder
	now      func() time.Time
}

func New(provider interfaces.StorageProvider, cfg Config) (*Builder, error) {
	if provider == nil {
		return nil, errors.New("builder: storage provider is required")
	}
	if cfg.ManifestKey == "" {
		return nil, errors.New("builder: manifest key is required")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.ThumbnailDir == "" {
		cfg.ThumbnailDir = defaultThumbnailDir
	}

	log := cfg.Log
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	migrator := cfg.Migrator
	if migrator == nil {
		migrator = manifest.NewMigrator(log, manifest.WithMetrics(cfg.Metrics))
	}

	return &Builder{
		cfg:      cfg,
		provider: provider,
		log:      log,
		migrator: migrator,
		metrics:  cfg.Metrics,
		now:      time.Now,
	}, nil
}

// photoTask is one image found in the listing.
type photoTask struct {
	id       string
	object   interfaces.ObjectInfo
	previous *manifest.PhotoManifestItem
}

// Build lists the provider, processes every image and writes the manifest.
//
// A photo that fails to process keeps its previous entry, if any, and does
// not fail the build. The build fails on listing, manifest, and context
// errors.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	start := b.now()
	runID := uuid.NewString()
	log := b.log.With(slog.String("run_id", runID))

	log.Info("Starting manifest build",
		slog.String("location", b.provider.LocationURI()),
		slog.String("prefix", b.cfg.Prefix),
		slog.Bool("force", b.cfg.Force))

	previous, migrated, err := b.loadPrevious(ctx, log)
	if err != nil {
		return nil, err
	}

	objects, err := b.provider.List(ctx, b.cfg.Prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}

	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}
	keySet := motionphoto.NewKeySet(keys)

	previousByKey := make(map[string]*manifest.PhotoManifestItem, len(previous.Data))
	for i := range previous.Data {
		previousByKey[previous.Data[i].S3Key] = &previous.Data[i]
	}

	tasks, sidecars := b.plan(objects, keySet, previousByKey)

	var processed, reused, failed atomic.Int64
	items := make([]*manifest.PhotoManifestItem, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)
	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			item, wasReused, err := b.processPhoto(gctx, task, keySet, log)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warn("Failed to process photo",
					slog.String("key", task.object.Key),
					"err", err)
				failed.Inc()
				b.metrics.RecordPhoto(metrics.PhotoFailed)
				items[i] = task.previous
				return nil
			}

			if wasReused {
				reused.Inc()
				b.metrics.RecordPhoto(metrics.PhotoReused)
			} else {
				processed.Inc()
				b.metrics.RecordPhoto(metrics.PhotoProcessed)
			}
			items[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build aborted: %w", err)
	}

	current := make(map[string]struct{}, len(tasks))
	for _, task := range tasks {
		current[task.object.Key] = struct{}{}
	}
	removed := 0
	for key := range previousByKey {
		if _, ok := current[key]; !ok {
			removed++
			b.metrics.RecordPhoto(metrics.PhotoRemoved)
			log.Debug("Photo removed from storage", slog.String("key", key))
		}
	}

	m := manifest.NewManifest()
	for _, item := range items {
		if item != nil {
			m.Data = append(m.Data, *item)
		}
	}
	sortItems(m.Data)
	m.Cameras, m.Lenses = equipmentTables(m.Data)

	if err := manifest.Save(ctx, b.provider, b.cfg.ManifestKey, m); err != nil {
		log.Error("Failed to save manifest", slog.String("key", b.cfg.ManifestKey), "err", err)
		return nil, err
	}

	result := &Result{
		RunID:     runID,
		Manifest:  m,
		Migrated:  migrated,
		Processed: int(processed.Load()),
		Reused:    int(reused.Load()),
		Failed:    int(failed.Load()),
		Removed:   removed,
		Sidecars:  sidecars,
		Duration:  b.now().Sub(start),
	}
	b.metrics.ObserveBuild(result.Duration)

	log.Info("Manifest build finished",
		slog.Int("photos", len(m.Data)),
		slog.Int("processed", result.Processed),
		slog.Int("reused", result.Reused),
		slog.Int("failed", result.Failed),
		slog.Int("removed", result.Removed),
		slog.Int("sidecars", result.Sidecars),
		slog.Duration("duration", result.Duration))

	return result, nil
}

// loadPrevious returns the stored manifest, migrating it in place first when
// it is outdated. A missing manifest yields an empty one.
func (b *Builder) loadPrevious(ctx context.Context, log *slog.Logger) (*manifest.Manifest, bool, error) {
	key := b.cfg.ManifestKey

	doc, err := manifest.ReadDocument(ctx, b.provider, key)
	if errors.Is(err, interfaces.ErrObjectNotFound) {
		log.Info("No previous manifest found", slog.String("key", key))
		return manifest.NewManifest(), false, nil
	}
	if err != nil {
		return nil, false, err
	}

	migrated := false
	if doc.Version() != manifest.CurrentVersion {
		migrated, err = manifest.MigrateObjectIfNeeded(ctx, b.provider, key, b.migrator)
		if err != nil {
			return nil, false, err
		}
	}

	m, err := manifest.Load(ctx, b.provider, key)
	if err != nil {
		return nil, false, err
	}
	return m, migrated, nil
}

// plan selects the images in the listing and assigns photo ids. Sidecar videos
// are counted and attached to their image later; other files are skipped.
func (b *Builder) plan(objects []interfaces.ObjectInfo, keys motionphoto.KeySet, previous map[string]*manifest.PhotoManifestItem) ([]photoTask, int) {
	tasks := make([]photoTask, 0, len(objects))
	ids := make(map[string]struct{}, len(objects))
	sidecars := 0

	for _, obj := range objects {
		if obj.Key == b.cfg.ManifestKey {
			continue
		}
		if motionphoto.IsSidecarVideo(obj.Key, keys) {
			sidecars++
			continue
		}
		if !motionphoto.IsImage(obj.Key) {
			b.log.Debug("Skipping non-image object", slog.String("key", obj.Key))
			continue
		}

		id := photoID(obj.Key)
		if _, taken := ids[id]; taken {
			id = qualifiedPhotoID(obj.Key, b.cfg.Prefix)
		}
		ids[id] = struct{}{}

		tasks = append(tasks, photoTask{
			id:       id,
			object:   obj,
			previous: previous[obj.Key],
		})
	}
	return tasks, sidecars
}

// sortItems orders photos newest first.
func sortItems(items []manifest.PhotoManifestItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].DateTaken != items[j].DateTaken {
			return items[i].DateTaken > items[j].DateTaken
		}
		return items[i].ID < items[j].ID
	})
}
