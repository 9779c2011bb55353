// Command filerelay relays changes under a directory tree to one peer and
// applies the peer's writes back onto disk.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"filerelay/internal/api"
	"filerelay/internal/cli"
	"filerelay/internal/config"
	"filerelay/internal/logging"
	"filerelay/internal/metrics"
	"filerelay/internal/version"
	"filerelay/internal/watcher"

	"github.com/spf13/pflag"
)

var errHelpShown = errors.New("help shown")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, errHelpShown) {
			return
		}
		fmt.Fprintf(os.Stderr, "filerelay: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	cfg, showVersion, err := parseConfig(args, stderr, os.LookupEnv)
	if err != nil {
		return err
	}
	if showVersion {
		fmt.Fprintln(stdout, version.Get().String())
		return nil
	}

	logger := logging.NewLoggerWithOutput(logging.NewBuffer(logging.DefaultBufferSize), cfg.Level(), stderr)
	logger = logger.With(map[string]string{"filerelay.category": "main"})

	server, err := api.NewServer(api.Options{
		Root:           cfg.Root,
		Transport:      cfg.Transport,
		QueueSize:      cfg.QueueSize,
		PollTimeout:    cfg.PollTimeout,
		MaxFrameBytes:  cfg.MaxFrameBytes,
		AllowedOrigins: cfg.AllowedOrigins,
		Ignore:         cfg.Ignore,
		Logger:         logger,
		Metrics:        metrics.Default,
		Registry:       watcher.DefaultRegistry,
	})
	if err != nil {
		return fmt.Errorf("start relay: %w", err)
	}

	listener, err := listen(cfg.Listen)
	if err != nil {
		_ = server.Close(context.Background())
		return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}
	httpServer := newHTTPServer(server)

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()
	signalCh := make(chan os.Signal, 2)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)
	stopSignals := watchShutdownSignals(logger, shutdownCancel, signalCh)
	defer stopSignals()

	// The relay goes first: hijacked websockets are invisible to Shutdown and
	// pending long-polls would otherwise hold it open until they time out.
	coordinator := newShutdownCoordinator(logger)
	coordinator.Add("relay", server.Close)
	coordinator.Add("http server", httpServer.Shutdown)

	logger.Info("filerelay listening", map[string]string{
		"addr":      listener.Addr().String(),
		"root":      cfg.Root,
		"transport": string(cfg.Transport),
		"version":   version.Get().Version,
	})
	return serve(shutdownCtx, httpServer, listener, coordinator)
}

// parseConfig layers defaults, the YAML file, FILERELAY_* variables and
// explicitly set flags, in that order.
func parseConfig(args []string, stderr io.Writer, lookup func(string) (string, bool)) (config.Config, bool, error) {
	flags := pflag.NewFlagSet("filerelay", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", config.DefaultFilename, "Path to a YAML config file")
	root := flags.String("root", "", "Directory to watch and write into (default: working directory)")
	listenAddr := flags.String("listen", config.DefaultListen, "Address to listen on")
	transport := flags.String("transport", string(config.TransportWebSocket), "Binding to serve: websocket or http")
	logLevel := flags.String("log-level", string(logging.LevelInfo), "Log level: debug, info, warn, error")
	queueSize := flags.Int("queue-size", config.DefaultQueueSize, "Change events buffered before the watcher blocks")
	pollTimeout := flags.Duration("poll-timeout", config.DefaultPollTimeout, "Long-poll wait before an empty answer")
	ignore := flags.StringSlice("ignore", nil, "Glob patterns to leave unwatched (repeatable)")
	helpVersion := cli.AddHelpVersionFlags(flags, "", "")
	flags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: filerelay [flags]\n\nFlags:\n")
		flags.PrintDefaults()
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return config.Config{}, false, errHelpShown
		}
		return config.Config{}, false, err
	}
	if helpVersion.Help {
		flags.Usage()
		return config.Config{}, false, errHelpShown
	}
	if helpVersion.Version {
		return config.Config{}, true, nil
	}

	cfg, err := config.Load(*configPath, flags.Changed("config"))
	if err != nil {
		return cfg, false, err
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return cfg, false, err
	}

	if flags.Changed("root") {
		cfg.Root = *root
	}
	if flags.Changed("listen") {
		cfg.Listen = *listenAddr
	}
	if flags.Changed("transport") {
		cfg.Transport = config.Transport(*transport)
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if flags.Changed("queue-size") {
		cfg.QueueSize = *queueSize
	}
	if flags.Changed("poll-timeout") {
		cfg.PollTimeout = *pollTimeout
	}
	if flags.Changed("ignore") {
		cfg.Ignore = *ignore
	}
	if cfg.Root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return cfg, false, fmt.Errorf("resolve working directory: %w", err)
		}
		cfg.Root = wd
	}

	if err := cfg.Validate(); err != nil {
		return cfg, false, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, false, nil
}
