// streamprobe connects to the terminal gateway and streams ticks to the
// console. Usage: go run ./cmd/streamprobe --config configs/client.example.yaml --symbols EURUSD,XAUUSD
//
// Required environment variables:
//
//	TRADEGATE_PASSWORD - account password (referenced from the config file)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/tradegate/tradegate"
	"github.com/tradegate/tradegate/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/client.example.yaml", "path to config file")
	symbolList := flag.String("symbols", "EURUSD", "comma-separated symbols to stream")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := tradegate.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	client, err := tradegate.New(cfg, tradegate.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	summary, err := client.AccountSummary(ctx)
	if err != nil {
		logger.Error("failed to fetch account summary", "error", err)
		os.Exit(1)
	}
	logger.Info("logged in",
		"account", summary.Account,
		"balance", summary.Balance,
		"currency", summary.Currency,
	)

	symbols := strings.Split(*symbolList, ",")
	logger.Info("streaming ticks", "symbols", symbols)

	ticks := client.SubscribeTicks(ctx, symbols...)
	for tick := range ticks.Events() {
		fmt.Printf("%s  %s  bid=%s ask=%s\n",
			tick.Time.Format("15:04:05.000"),
			tick.Symbol,
			tick.Bid,
			tick.Ask,
		)
	}

	if err := ticks.Err(); err != nil && ctx.Err() == nil {
		logger.Error("stream ended", "error", err)
		os.Exit(1)
	}

	stats := client.Stats()
	logger.Info("done", "connects", stats.Connects, "reconnects", stats.Reconnects)
}
