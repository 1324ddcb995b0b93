package flags

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/afilmory/builder/common"
	"github.com/afilmory/builder/config"
	"github.com/afilmory/builder/httpserver"
	"github.com/afilmory/builder/storage"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// LoadConfig reads the --config file and applies the command line overrides.
func LoadConfig(cCtx *cli.Context) (config.Config, error) {
	cfg, err := config.Load(cCtx.String(ConfigFlag.Name))
	if err != nil {
		return config.Config{}, err
	}

	if cCtx.IsSet(StorageFlag.Name) {
		storageCfg, err := storage.ParseLocationURI(cCtx.String(StorageFlag.Name))
		if err != nil {
			return config.Config{}, fmt.Errorf("--%s: %w", StorageFlag.Name, err)
		}
		cfg.Storage = storageCfg
	}
	if cCtx.IsSet(ManifestKeyFlag.Name) {
		cfg.Manifest.Key = cCtx.String(ManifestKeyFlag.Name)
	}
	return cfg, cfg.Validate()
}

// ConfigureServer merges the server section of the config file with flags
// given explicitly on the command line.
func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, cfg config.ServerConfig) *httpserver.HTTPServerConfig {
	listenAddr := cfg.ListenAddr
	if cCtx.IsSet(ListenAddrFlag.Name) {
		listenAddr = cCtx.String(ListenAddrFlag.Name)
	}
	metricsAddr := cfg.MetricsAddr
	if cCtx.IsSet(MetricsAddrFlag.Name) {
		metricsAddr = cCtx.String(MetricsAddrFlag.Name)
	}
	enablePprof := cfg.EnablePprof || cCtx.Bool(PprofFlag.Name)
	drainDuration := cfg.DrainDuration
	if cCtx.IsSet(DrainSecondsFlag.Name) {
		drainDuration = time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second
	}

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var ConfigFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	EnvVars: []string{"AFILMORY_CONFIG"},
	Usage:   "path to the YAML builder configuration",
}

var StorageFlag = &cli.StringFlag{
	Name:    "storage",
	EnvVars: []string{"AFILMORY_STORAGE"},
	Usage:   "storage location URI, overrides the config file (file://, s3://, github://, ipfs://, vault://, memory://)",
}

var ManifestKeyFlag = &cli.StringFlag{
	Name:  "manifest-key",
	Usage: "object key of the photo manifest",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}
var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	ConfigFlag,
	StorageFlag,
	ManifestKeyFlag,
}

var ServerFlags = []cli.Flag{
	ListenAddrFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
