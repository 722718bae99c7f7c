// cmd/stratctl creates, inspects and runs saved trading strategies against
// the backend.
//
// Usage:
//
//	go run ./cmd/stratctl indicators
//	go run ./cmd/stratctl create -name "rsi dip" -coin BTC -tf 1h -i RSI:oversold=35,overbought=65 -sl 1
//	go run ./cmd/stratctl list
//	go run ./cmd/stratctl live start <id>
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"cryptostrat/config"
	"cryptostrat/internal/app"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	_ = godotenv.Load(".env")

	storeDriver := flag.String("store", "", "Override STORE_DRIVER (memory, sqlite, postgres, redis)")
	flag.Usage = usage
	flag.Parse()

	cfg := config.Load()
	if *storeDriver != "" {
		cfg.StoreDriver = *storeDriver
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Open(ctx, "stratctl", cfg, os.Stderr)
	if err != nil {
		log.Fatalf("[stratctl] init failed: %v", err)
	}
	defer a.Close()

	if err := run(ctx, a.Service, flag.Args(), os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			usage()
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "stratctl: %v\n", err)
		a.Close()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: stratctl [-store driver] <command> [args]

commands:
  indicators                     list the indicator catalog
  create -name N -coin C -tf T [-i SPEC]... [-tp P] [-sl P] [-amount A]
  list                           saved strategies, newest first
  show [-request] <id>           print a strategy as JSON
  activate [-off] <id>           set or clear the active flag
  risk [-tp P] [-sl P] [-amount A] <id>
  delete <id>
  backtest [-balance B] <id>     run a backtest and print the summary
  live start <id> | stop <id> | stop-symbol [SYMBOL] | status [SYMBOL]

indicator SPEC: NAME[:key=value,...]  keys are parameter names, or
  trigger=TYPE, value=V, compare=V, lower=V, upper=V`)
}
