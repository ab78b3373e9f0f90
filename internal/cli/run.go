// internal/cli/run.go
package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/websentry/scraperd/internal/app"
	"github.com/websentry/scraperd/internal/config"
)

const shutdownGrace = 30 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the worker loop",
	Long:  `Run connects to the broker and processes domains until interrupted. A first interrupt drains in-flight sessions; a second one aborts immediately.`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn().Msg("Interrupt received, draining in-flight sessions...")
		cancel()
		<-sigCh
		log.Warn().Msg("Second interrupt, aborting")
		os.Exit(1)
	}()

	err = application.Run(ctx)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer closeCancel()
	if cerr := application.Close(closeCtx); cerr != nil {
		log.Warn().Err(cerr).Msg("Error during shutdown")
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
