package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/signalrelay/internal/client"
	"github.com/Tyrowin/signalrelay/internal/logging"
)

var (
	relayURL   string
	logLevel   string
	maxRetries uint64

	rootCmd = &cobra.Command{
		Use:           "relay-client",
		Short:         "Interactive peer for the signaling relay",
		Long:          "Sends each line read from stdin to the relay and prints every message received from other peers.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
)

func init() {
	rootCmd.Flags().StringVarP(&relayURL, "url", "u", "ws://localhost:8080", "relay WebSocket URL")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level")
	rootCmd.Flags().Uint64Var(&maxRetries, "max-retries", 5, "connection attempts to retry before giving up, 0 retries until interrupted")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	if err := logging.InitLog(logLevel, logging.LogConsole); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, relayURL, client.Options{
		MaxRetries: maxRetries,
		OnRetry: func(err error, next time.Duration) {
			log.Warnf("connection failed, retrying in %s: %v", next, err)
		},
	})
	if err != nil {
		return fmt.Errorf("connect to relay: %w", err)
	}
	defer func() {
		_ = c.Close()
	}()

	fmt.Fprintf(cmd.ErrOrStderr(), "connected to %s\n", relayURL)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return printMessages(ctx, c, cmd.OutOrStdout())
	})
	g.Go(func() error {
		// stdin reads cannot be interrupted; ending the connection is enough
		err := sendLines(c, cmd.InOrStdin())
		_ = c.Close()
		return err
	})
	g.Go(func() error {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-c.Done():
		}
		return nil
	})
	return g.Wait()
}

func printMessages(ctx context.Context, c *client.Client, out io.Writer) error {
	for {
		select {
		case msg, ok := <-c.Messages():
			if !ok {
				return c.Err()
			}
			if _, err := fmt.Fprintf(out, "%s\n", msg.Payload); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func sendLines(c *client.Client, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := c.Send(scanner.Bytes()); err != nil {
			return err
		}
	}
	return scanner.Err()
}
