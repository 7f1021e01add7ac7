package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"character-hunter/src/clicks"
	"character-hunter/src/config"
	"character-hunter/src/logutil"
	"character-hunter/src/notification"
	"character-hunter/src/pipeline"
	"character-hunter/src/resident"
	"character-hunter/src/runtimeinit"
	"character-hunter/src/tray"
)

type mainOptions struct {
	configPath          string
	datasetDir          string
	noTray              bool
	logFile             bool
	acceptLowConfidence bool
}

func (o *mainOptions) loadOptions() config.LoadOptions {
	return config.LoadOptions{
		ConfigPath:     o.configPath,
		DatasetDir:     o.datasetDir,
		DisableTray:    o.noTray,
		EnableFileLog:  o.logFile,
		AcceptLowQuery: o.acceptLowConfidence,
	}
}

func newRootCmd(opts *mainOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "character-hunter",
		Short:         "Save screen regions you click on while searching for a character",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to a YAML configuration file")
	cmd.Flags().StringVar(&opts.datasetDir, "dataset", "", "Dataset root directory (overrides configuration)")
	cmd.Flags().BoolVar(&opts.noTray, "no-tray", false, "Run without the system tray icon")
	cmd.Flags().BoolVar(&opts.logFile, "log-file", false, "Also write logs to a rotating file in the dataset directory")
	cmd.Flags().BoolVar(&opts.acceptLowConfidence, "accept-low-confidence", false, "Label captures with low-confidence queries instead of ignoring them")
	return cmd
}

func main() {
	enableDPIAwareness()

	// systray must own the main thread on macOS and Windows.
	runtime.LockOSThread()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := &mainOptions{}
	if err := newRootCmd(opts).ExecuteContext(ctx); err != nil {
		log.Printf("character-hunter: %v", err)
		fmt.Fprintf(os.Stderr, "character-hunter: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *mainOptions) error {
	cfg, err := runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions:     opts.loadOptions(),
		SetupLogging:    logutil.Setup,
		ShowBlockingErr: true,
	})
	if err != nil {
		return err
	}

	p, err := pipeline.New(cfg, pipeline.Deps{})
	if err != nil {
		if errors.Is(err, resident.ErrAlreadyRunning) {
			return fmt.Errorf("another instance is already running on port %d", cfg.PortStart)
		}
		notification.ShowBlockingError("Character hunter failed to start", err.Error())
		return err
	}
	log.Printf("Character hunter started: session %s, dataset %s, status on port %d", p.Session(), cfg.DatasetDir, p.Port())

	if !cfg.EnableTray {
		return reportRunError(p.Run(ctx))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		err := p.Run(ctx)
		// Tear the tray down when the pipeline ends on its own.
		cancel()
		done <- err
	}()
	tray.Run(ctx, p.Snapshot, cancel)
	cancel()
	return reportRunError(<-done)
}

func reportRunError(err error) error {
	if errors.Is(err, clicks.ErrListenerUnavailable) {
		notification.ShowBlockingError("Click listener unavailable",
			fmt.Sprintf("%v\n\nGrant this program accessibility (input monitoring) permission in the OS settings and restart it.", err))
	}
	return err
}
