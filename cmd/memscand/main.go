package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/dorastack/memscan/internal/api"
	"github.com/dorastack/memscan/internal/bridge"
	"github.com/dorastack/memscan/internal/config"
	"github.com/dorastack/memscan/internal/eventqueue"
	"github.com/dorastack/memscan/internal/filter"
	"github.com/dorastack/memscan/internal/guard"
	"github.com/dorastack/memscan/internal/logger"
	"github.com/dorastack/memscan/internal/scanner"
	"github.com/dorastack/memscan/internal/scanstore"
)

func main() {
	root := &cobra.Command{
		Use:   "memscand",
		Short: "remote memory scan/filter server",
		RunE:  run,
	}

	defaultSettings, _ := config.SettingsPath()
	root.Flags().String("config", defaultSettings, "path to settings.json")
	root.Flags().String("addr", "", "listen address, overrides config bind_host:bind_port")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	settingsPath, _ := cmd.Flags().GetString("config")
	addrFlag, _ := cmd.Flags().GetString("addr")

	cfg, err := config.Load(settingsPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	br := bridge.NewPlatformDefault()
	store := scanstore.New()
	g := guard.New()
	events := eventqueue.New(cfg.EventQueueCapacity)
	br.RegisterEventCallback(eventqueue.NewSink(context.Background(), br, events, nil))

	scanEng := scanner.New(br, store, g, uint64(cfg.ChunkSizeBytes), cfg.InFlightCap, logger.Log)
	scanEng.SpillDir = cfg.SpillDir
	filterEng := filter.New(br, store, g, cfg.MaterializationThreshold, logger.Log)
	filterEng.SpillDir = cfg.SpillDir

	core := api.NewCore(br, store, scanEng, filterEng, g, events, cfg.MaxResults, cfg.MaterializationThreshold, logger.Log)

	addr := fmt.Sprintf("%s:%d", cfg.BindHost, cfg.BindPort)
	if addrFlag != "" {
		addr = addrFlag
	}
	srv := api.NewServer(core, addr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Info("memscand listening", "addr", addr)
	return srv.ListenAndServe(ctx)
}
