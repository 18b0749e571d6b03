package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/ruteri/threshold-curator-kms/api/clients"
	"github.com/ruteri/threshold-curator-kms/api/curatorapi"
	"github.com/ruteri/threshold-curator-kms/bench"
	"github.com/ruteri/threshold-curator-kms/cmd/flags"
	"github.com/ruteri/threshold-curator-kms/codec"
	"github.com/ruteri/threshold-curator-kms/curator"
	"github.com/ruteri/threshold-curator-kms/field"
	"github.com/ruteri/threshold-curator-kms/httpserver"
	"github.com/ruteri/threshold-curator-kms/interfaces"
	"github.com/ruteri/threshold-curator-kms/storage"
	"github.com/urfave/cli/v2"
)

var ChainSizeFlag = &cli.IntFlag{
	Name:  "chain-size",
	Value: 1,
	Usage: "number of links created before the timed create/recover pair",
}

var RotationFlag = &cli.StringFlag{
	Name:  "rotation",
	Value: "fresh",
	Usage: "where new link secrets come from: fresh, reshare or linked",
}

var TransportFlag = &cli.StringFlag{
	Name:  "transport",
	Value: "local",
	Usage: "how the chain reaches its curators: local or http",
}

var UnavailableFlag = &cli.IntFlag{
	Name:  "unavailable",
	Usage: "number of curators taken offline before the timed pair",
}

var RepeatFlag = &cli.IntFlag{
	Name:  "repeat",
	Value: 1,
	Usage: "number of runs, each with a fresh committee",
}

var OwnerFlag = &cli.BoolFlag{
	Name:  "owner",
	Usage: "sign links with a data subject key and recover with its consent",
}

var ChartFlag = &cli.StringFlag{
	Name:  "chart",
	Usage: "write an HTML chart of the run timings to this file",
}

var ArchiveFlag = &cli.StringSliceFlag{
	Name:  "archive",
	Usage: "storage location URI receiving link records and audit entries; repeat to replicate",
}

var CuratorsSRVFlag = &cli.StringFlag{
	Name:  "curators-srv",
	Usage: "DNS SRV name of 2t+1 running curators to use instead of a fresh committee",
}

var DNSResolverFlag = &cli.StringFlag{
	Name:  "dns-resolver",
	Value: clients.DefaultResolver,
	Usage: "DNS server for --curators-srv",
}

var SizeFlag = &cli.IntFlag{
	Name:  "size",
	Value: 1 << 20,
	Usage: "plaintext size in bytes",
}

var CuratorIDFlag = &cli.StringFlag{
	Name:  "id",
	Usage: "curator identifier, random when empty",
}

func main() {
	app := &cli.App{
		Name:  "rnbench",
		Usage: "Benchmark threshold curator key management",
		Commands: []*cli.Command{
			{
				Name:   "rn",
				Usage:  "Time Rn chain create and recover",
				Flags:  slices.Concat([]cli.Flag{flags.ThresholdFlag, ChainSizeFlag, RotationFlag, flags.FieldFlag, TransportFlag, UnavailableFlag, RepeatFlag, OwnerFlag, ChartFlag, ArchiveFlag, CuratorsSRVFlag, DNSResolverFlag}, flags.LogFlags("rnbench")),
				Action: runRn,
			},
			{
				Name:   "fn",
				Usage:  "Measure encryption and decryption throughput",
				Flags:  slices.Concat([]cli.Flag{SizeFlag, flags.CipherFlag, flags.ThresholdFlag, flags.FieldFlag, flags.StoreFlag}, flags.LogFlags("rnbench")),
				Action: runFn,
			},
			{
				Name:   "serve-curator",
				Usage:  "Serve a single curator over HTTP",
				Flags:  slices.Concat([]cli.Flag{flags.ListenAddrFlag, flags.FieldFlag, CuratorIDFlag}, flags.CommonFlags("curator")),
				Action: serveCurator,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runRn(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	ctx := cCtx.Context

	f, err := field.ByName(cCtx.String(flags.FieldFlag.Name))
	if err != nil {
		return err
	}
	rotation, err := interfaces.ParseRotationMode(cCtx.String(RotationFlag.Name))
	if err != nil {
		return err
	}
	transport, err := bench.ParseTransport(cCtx.String(TransportFlag.Name))
	if err != nil {
		return err
	}

	cfg := bench.RnConfig{
		Threshold:   cCtx.Int(flags.ThresholdFlag.Name),
		ChainSize:   cCtx.Int(ChainSizeFlag.Name),
		Rotation:    rotation,
		Field:       f,
		Transport:   transport,
		Unavailable: cCtx.Int(UnavailableFlag.Name),
		Repeat:      cCtx.Int(RepeatFlag.Name),
		Owner:       cCtx.Bool(OwnerFlag.Name),
		Log:         logger,
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if uris := cCtx.StringSlice(ArchiveFlag.Name); len(uris) > 0 {
		if cfg.Archive, err = openStore(logger, uris); err != nil {
			return err
		}
	}

	if name := cCtx.String(CuratorsSRVFlag.Name); name != "" {
		cfg.Remote, err = clients.ResolveCurators(ctx, name, cCtx.String(DNSResolverFlag.Name))
		if err != nil {
			return err
		}
		logger.Info("Resolved curators", "name", name, "count", len(cfg.Remote))
	}

	result, err := bench.RunRn(ctx, cfg)
	if err != nil {
		return err
	}
	summaries, err := result.Summaries()
	if err != nil {
		return err
	}

	if path := cCtx.String(ChartFlag.Name); path != "" {
		if err := bench.WriteChartFile(path, result); err != nil {
			return err
		}
	}

	fmt.Printf("Rn setup: t=%d n=%d chain size=%d field=%s rotation=%s transport=%s\n",
		result.Threshold, result.N, result.ChainSize, result.Field, result.Rotation, result.Transport)
	for _, s := range summaries {
		fmt.Println(s)
	}
	return nil
}

func runFn(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	f, err := field.ByName(cCtx.String(flags.FieldFlag.Name))
	if err != nil {
		return err
	}
	cipher, err := codec.ParseCipher(cCtx.String(flags.CipherFlag.Name))
	if err != nil {
		return err
	}

	cfg := bench.FnConfig{
		Size:      cCtx.Int(SizeFlag.Name),
		Cipher:    cipher,
		Threshold: cCtx.Int(flags.ThresholdFlag.Name),
		Field:     f,
		Log:       logger,
	}
	if uris := cCtx.StringSlice(flags.StoreFlag.Name); len(uris) > 0 {
		if cfg.Store, err = openStore(logger, uris); err != nil {
			return err
		}
	}

	result, err := bench.RunFn(cCtx.Context, cfg)
	if err != nil {
		return err
	}

	tp := result.Throughput
	fmt.Printf("Fn setup: size=%d cipher=%s\n", tp.Size, tp.Cipher)
	fmt.Printf("encrypt  %v  %.2f MiB/s\n", tp.Encrypt, tp.EncryptBytesPerSecond()/(1<<20))
	fmt.Printf("decrypt  %v  %.2f MiB/s\n", tp.Decrypt, tp.DecryptBytesPerSecond()/(1<<20))
	if cfg.Store != nil {
		fmt.Printf("stored   %s\n", result.StoredID)
		fmt.Printf("record   %s epoch=%d writer=%x\n", result.Record.ID, result.Record.Epoch, []byte(result.Record.Writer))
	}
	return nil
}

func serveCurator(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	f, err := field.ByName(cCtx.String(flags.FieldFlag.Name))
	if err != nil {
		return err
	}

	c := curator.New(cCtx.String(CuratorIDFlag.Name), f, logger)

	server, err := httpserver.New(flags.ConfigureServer(cCtx, logger, cCtx.String(flags.ListenAddrFlag.Name)), curatorapi.NewHandler(c, logger))
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}
	server.RunInBackground()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Curator is running, press Ctrl+C to stop", "id", c.ID(), "field", f.Name())
	<-ctx.Done()
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}

// openStore opens one backend per URI; several URIs are replicated.
func openStore(logger *slog.Logger, uris []string) (interfaces.StorageBackend, error) {
	locations, err := storage.ParseLocations(uris)
	if err != nil {
		return nil, err
	}

	factory := storage.NewStorageBackendFactory(logger)
	if len(locations) == 1 {
		return factory.StorageBackendFor(locations[0])
	}
	return factory.CreateMultiBackend(locations)
}
