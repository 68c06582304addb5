package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/signalrelay/internal/logging"
	"github.com/Tyrowin/signalrelay/internal/metrics"
	"github.com/Tyrowin/signalrelay/internal/server"
)

const shutdownTimeout = 30 * time.Second

type Config struct {
	Port           int
	LogLevel       string
	LogFile        string
	MetricsPort    int
	MaxMessageSize int64
	SendBuffer     int
	AllowedOrigins string
}

func (c Config) serverConfig() server.Config {
	cfg := server.NewConfig()
	cfg.Port = c.Port
	cfg.MaxMessageSize = c.MaxMessageSize
	cfg.SendBufferSize = c.SendBuffer
	cfg.AllowedOrigins = server.ParseOrigins(c.AllowedOrigins)
	return *cfg
}

var (
	cobraConfig *Config
	rootCmd     = &cobra.Command{
		Use:           "signal-relay",
		Short:         "WebSocket signaling relay",
		Long:          "Relays every message a client sends to all other connected clients. Used to exchange session offers, answers and candidates between peers.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          execute,
	}
)

// envErr holds the RELAY_* variables that could not be applied to their flags.
var envErr error

func init() {
	cobraConfig = &Config{}
	rootCmd.PersistentFlags().IntVarP(&cobraConfig.Port, "port", "p", server.DefaultPort, "port to accept WebSocket connections on")
	rootCmd.PersistentFlags().StringVar(&cobraConfig.LogLevel, "log-level", "info", "log level (panic, fatal, error, warn, info, debug, trace)")
	rootCmd.PersistentFlags().StringVar(&cobraConfig.LogFile, "log-file", logging.LogConsole, "log file path, or console")
	rootCmd.PersistentFlags().IntVar(&cobraConfig.MetricsPort, "metrics-port", 9090, "metrics endpoint http port, 0 disables it. Metrics are accessible under host:metrics-port/metrics")
	rootCmd.PersistentFlags().Int64Var(&cobraConfig.MaxMessageSize, "max-message-size", server.DefaultMaxMessageSize, "maximum size in bytes of a single inbound message")
	rootCmd.PersistentFlags().IntVar(&cobraConfig.SendBuffer, "send-buffer", server.DefaultSendBufferSize, "number of messages queued per connection before deliveries are dropped")
	rootCmd.PersistentFlags().StringVar(&cobraConfig.AllowedOrigins, "allowed-origins", "*", "comma separated list of browser origins allowed to connect")

	envErr = setFlagsFromEnvVars(rootCmd)
}

func Execute() error {
	return rootCmd.Execute()
}

func waitForExitSignal(ctx context.Context) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
}

func execute(cmd *cobra.Command, _ []string) error {
	if envErr != nil {
		return fmt.Errorf("failed to read environment: %w", envErr)
	}

	if err := logging.InitLog(cobraConfig.LogLevel, cobraConfig.LogFile); err != nil {
		return fmt.Errorf("failed to initialize log: %w", err)
	}

	// Resource creation phase (fail fast before starting any goroutines)

	var metricsServer *metrics.Metrics
	var meter metric.Meter = noop.NewMeterProvider().Meter("")
	if cobraConfig.MetricsPort > 0 {
		m, err := metrics.NewServer(cobraConfig.MetricsPort, "")
		if err != nil {
			return fmt.Errorf("setup metrics: %w", err)
		}
		metricsServer = m
		meter = m.Meter
	}

	srv, err := server.NewServer(cobraConfig.serverConfig(), meter)
	if err != nil {
		return fmt.Errorf("failed to create relay server: %w", err)
	}

	if err := srv.Listen(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		if err := srv.Serve(); err != nil {
			return fmt.Errorf("relay server: %w", err)
		}
		return nil
	})

	if metricsServer != nil {
		g.Go(func() error {
			log.Infof("running metrics server: %s%s", metricsServer.Addr, metricsServer.Endpoint)
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	// returns on a signal or when one of the servers fails
	waitForExitSignal(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	errs := shutdownServers(shutdownCtx, metricsServer, srv)
	if err := g.Wait(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return errs
}

func shutdownServers(ctx context.Context, metricsServer *metrics.Metrics, srv *server.Server) error {
	var errs error

	if err := srv.Shutdown(ctx); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("failed to close relay server: %w", err))
	}

	if metricsServer != nil {
		log.Infof("shutting down metrics server")
		if err := metricsServer.Shutdown(ctx); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("failed to close metrics server: %w", err))
		}
	}

	return errs
}
