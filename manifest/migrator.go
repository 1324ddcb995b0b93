package manifest

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/afilmory/builder/metrics"
)

const (
	CurrentVersion = "v8"
	UnknownVersion = "unknown"
)

var (
	ErrNoMigrationPath  = errors.New("no migration step registered")
	ErrMigrationCycle   = errors.New("migration cycle detected")
	ErrInvalidManifest  = errors.New("invalid manifest")
	ErrVersionMismatch  = errors.New("manifest version mismatch")
	ErrInvalidMigration = errors.New("invalid migration step")
)

// StepContext is passed to every step.
type StepContext struct {
	From string
	To   string
	Log  *slog.Logger
}

// Step transforms a document tagged From into the To shape. Exec may modify
// doc in place and return it. It should set the version itself; otherwise To
// is assumed.
type Step struct {
	From string
	To   string
	Exec func(doc Document, ctx StepContext) (Document, error)
}

// Migrator drives documents through the registered steps.
type Migrator struct {
	steps   []Step
	strict  bool
	log     *slog.Logger
	metrics *metrics.Recorder
}

type Option func(*Migrator)

// WithSteps replaces the built-in chain. When several steps share a From
// version the first one wins.
func WithSteps(steps ...Step) Option {
	return func(m *Migrator) {
		m.steps = append([]Step(nil), steps...)
	}
}

// WithStrict makes Migrate fail with ErrNoMigrationPath or ErrMigrationCycle
// instead of forcing the version tag.
func WithStrict(strict bool) Option {
	return func(m *Migrator) {
		m.strict = strict
	}
}

func WithMetrics(recorder *metrics.Recorder) Option {
	return func(m *Migrator) {
		m.metrics = recorder
	}
}

// NewMigrator creates a migrator with the built-in chain. log may be nil.
func NewMigrator(log *slog.Logger, opts ...Option) *Migrator {
	if log == nil {
		log = discardLogger()
	}

	m := &Migrator{
		steps: DefaultSteps(),
		log:   log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Migrate moves doc to target, which defaults to CurrentVersion.
//
// A document already at target is returned untouched. When no step matches the
// current version, or a transition repeats, the version tag is set to target
// without transforming the content (unless the migrator is strict). Errors
// returned by a step are propagated.
func (m *Migrator) Migrate(doc Document, target string) (Document, error) {
	if target == "" {
		target = CurrentVersion
	}
	if doc == nil {
		doc = Document{}
	}

	current := doc.Version()
	if current == target {
		m.metrics.RecordMigration(metrics.MigrationCurrent)
		return doc, nil
	}

	start := current
	visited := make(map[string]struct{})

	for current != target {
		transition := current + "->" + target
		if _, seen := visited[transition]; seen {
			return m.fallback(doc, current, target, ErrMigrationCycle)
		}
		visited[transition] = struct{}{}

		step, ok := m.stepFrom(current)
		if !ok {
			return m.fallback(doc, current, target, ErrNoMigrationPath)
		}
		if step.Exec == nil {
			m.metrics.RecordMigration(metrics.MigrationFailed)
			return nil, fmt.Errorf("%w: %s -> %s has no transform", ErrInvalidMigration, step.From, step.To)
		}

		m.log.Debug("Running manifest migration step",
			slog.String("from", step.From),
			slog.String("to", step.To))

		next, err := step.Exec(doc, StepContext{From: current, To: step.To, Log: m.log})
		if err != nil {
			m.metrics.RecordMigration(metrics.MigrationFailed)
			return nil, fmt.Errorf("migrate %s -> %s: %w", step.From, step.To, err)
		}
		if next != nil {
			doc = next
		}
		m.metrics.RecordMigrationStep(step.From, step.To)

		if _, ok := doc["version"].(string); !ok {
			doc.SetVersion(step.To)
		}
		current = doc.Version()
	}

	m.log.Info("Migrated manifest",
		slog.String("from", start),
		slog.String("to", target))
	m.metrics.RecordMigration(metrics.MigrationMigrated)

	return doc, nil
}

func (m *Migrator) fallback(doc Document, current, target string, reason error) (Document, error) {
	if m.strict {
		m.log.Error("Manifest migration aborted",
			slog.String("version", current),
			slog.String("target", target),
			"err", reason)
		m.metrics.RecordMigration(metrics.MigrationFailed)
		return nil, fmt.Errorf("%w: %s -> %s", reason, current, target)
	}

	m.log.Warn("Forcing manifest version without migrating content",
		slog.String("version", current),
		slog.String("target", target),
		slog.String("reason", reason.Error()))
	m.metrics.RecordMigration(metrics.MigrationForced)

	doc.SetVersion(target)
	return doc, nil
}

func (m *Migrator) stepFrom(version string) (Step, bool) {
	for _, step := range m.steps {
		if step.From == version {
			return step, true
		}
	}
	return Step{}, false
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
