package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/jobsieve/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve persisted candidates, quota and the run log over HTTP",
	Run: func(cmd *cobra.Command, _ []string) {
		serve(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address overriding serve.addr from the config")
}

func serve(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := newLogger("serve")
	defer logger.Sync()

	config := mustConfig(logger)

	addr := config.Serve.Addr
	if flag, _ := cmd.Flags().GetString("addr"); flag != "" {
		addr = flag
	}

	b, err := openBackend(ctx, config, logger)
	if err != nil {
		logger.Fatal("opening storage", zap.Error(err))
	}
	defer b.Close()

	server := httpapi.New(&httpapi.Deps{
		Store:     b.store,
		Quota:     b.ledger,
		Platforms: config.SearchPlatforms(),
		Logger:    logger,
	})

	if err := server.Run(ctx, addr); err != nil {
		logger.Fatal("serving http api", zap.Error(err))
	}
}
