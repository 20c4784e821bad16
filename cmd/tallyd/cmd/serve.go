package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tally-analytics-service/cmd/tallyd/config"
	"tally-analytics-service/internal/parser"
	"tally-analytics-service/internal/server"
	"tally-analytics-service/pkg/logger"
)

// Flags for the serve command
var (
	serveHost   string
	servePort   int
	uploadLimit int64
	cacheTTL    string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP analytics service",
	Long: `Serve starts the HTTP API. Backups are uploaded to POST /api/v1/backups
and the returned analysis ID drives the summary, ledger, voucher and
dashboard endpoints.

Examples:
  tallyd serve
  tallyd serve --port 9090 --cache-ttl 2h
  TALLYD_PORT=9090 tallyd serve`,

	PreRunE: validateServeFlags,
	RunE:    runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "0.0.0.0", "interface to listen on")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "port to listen on")
	serveCmd.Flags().Int64Var(&uploadLimit, "upload-limit", 2*1024*1024*1024, "maximum upload size in bytes")
	serveCmd.Flags().StringVar(&cacheTTL, "cache-ttl", "1h", "how long parsed analyses stay queryable")

	viper.BindPFlag("host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("upload-limit", serveCmd.Flags().Lookup("upload-limit"))
	viper.BindPFlag("cache-ttl", serveCmd.Flags().Lookup("cache-ttl"))
}

func validateServeFlags(cmd *cobra.Command, args []string) error {
	serveHost = viper.GetString("host")
	servePort = viper.GetInt("port")
	uploadLimit = viper.GetInt64("upload-limit")
	cacheTTL = viper.GetString("cache-ttl")

	if servePort <= 0 || servePort > 65535 {
		return fmt.Errorf("invalid port: %d", servePort)
	}
	if uploadLimit <= 0 {
		return fmt.Errorf("upload limit must be positive")
	}
	if _, err := config.ParseTTL(cacheTTL); err != nil {
		return fmt.Errorf("invalid cache-ttl: %w", err)
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	errorHandler := NewCLIErrorHandler()

	// The service logs JSON regardless of the CLI default
	log, err := logger.NewLogger(logger.ServerConfig())
	if err == nil {
		logger.SetGlobalLogger(log)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := parser.New(config.CreateParserConfig())
	if err != nil {
		os.Exit(errorHandler.HandleError(err))
	}

	serverConfig, err := config.CreateServerConfig(serveHost, servePort, uploadLimit, cacheTTL)
	if err != nil {
		os.Exit(errorHandler.HandleError(err))
	}

	srv, err := server.New(serverConfig, p)
	if err != nil {
		os.Exit(errorHandler.HandleError(err))
	}

	if err := srv.Start(ctx); err != nil {
		os.Exit(errorHandler.HandleError(err))
	}
	return nil
}
