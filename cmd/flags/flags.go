package flags

import (
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/threshold-curator-kms/api"
	"github.com/ruteri/threshold-curator-kms/common"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(logServiceFlagName)

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

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *api.HTTPServerConfig {
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &api.HTTPServerConfig{
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

var ThresholdFlag = &cli.IntFlag{
	Name:  "threshold",
	Value: 2,
	Usage: "reconstruction threshold t; every share set has n = 2t+1 shares",
}

var FieldFlag = &cli.StringFlag{
	Name:  "field",
	Value: "ed25519",
	Usage: "prime field of the shares: ed25519, mersenne127 or p256",
}

var CipherFlag = &cli.StringFlag{
	Name:  "cipher",
	Value: "aes-256-gcm",
	Usage: "AEAD for data keys: aes-256-gcm or chacha20-poly1305",
}

var StoreFlag = &cli.StringSliceFlag{
	Name:  "store",
	Usage: "storage location URI (file://, s3://, ipfs://, vault://); repeat to replicate",
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for the curator API",
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

const logServiceFlagName = "log-service"

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  logServiceFlagName,
		Value: service,
		Usage: "add 'service' tag to logs",
	}
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

// LogFlags configure logging only. Benchmarks use them without the server
// flags.
func LogFlags(service string) []cli.Flag {
	return []cli.Flag{
		LogJsonFlag,
		LogDebugFlag,
		LogUidFlag,
		LogServiceFlagFn(service),
	}
}

// CommonFlags are the logging flags plus the HTTP server flags.
func CommonFlags(service string) []cli.Flag {
	return slices.Concat(LogFlags(service), []cli.Flag{
		PprofFlag,
		DrainSecondsFlag,
		MetricsAddrFlag,
	})
}
