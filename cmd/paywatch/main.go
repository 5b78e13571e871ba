// Command paywatch follows a payment from the terminal until it settles,
// the way the web checkout does after redirecting to the provider.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"elverra-membership/internal/infra/poller"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	base := flag.String("base", envOr("ELVERRA_API_URL", "http://localhost:8080"), "API base URL")
	token := flag.String("token", os.Getenv("ELVERRA_TOKEN"), "bearer token of the paying member")
	paymentID := flag.String("payment", "", "payment id to watch")
	gateway := flag.String("gateway", "", "gateway of the payment (orange_money|sama_money|cinetpay)")
	interval := flag.Duration("interval", poller.DefaultInterval, "polling interval")
	timeout := flag.Duration("timeout", 15*time.Minute, "give up after this long")
	lang := flag.String("lang", "fr", "Accept-Language for error messages")
	verbose := flag.Bool("v", false, "log every poll")
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).With().Timestamp().Logger()

	if *paymentID == "" {
		fmt.Fprintln(os.Stderr, "usage: paywatch -payment <id> [-gateway name] [-token jwt]")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	p := poller.New(poller.NewHTTPVerifier(*base, *token, *lang, 0), *interval, &logger)
	outcome, err := p.Run(ctx, *paymentID, *gateway, func(s *poller.Status) {
		fmt.Printf("payment %s completed; membership is active\n", s.PaymentID)
	})

	switch outcome {
	case poller.OutcomeCompleted:
		return 0
	case poller.OutcomeCancelled:
		logger.Warn().Err(err).Msg("stopped before the payment settled")
		return 3
	default:
		logger.Error().Err(err).Msg("payment did not complete")
		return 1
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
