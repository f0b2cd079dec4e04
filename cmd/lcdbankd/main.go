// Command lcdbankd serves a bank of ST77xx panels over TCP.
//
//	lcdbankd -config lcdbank.yaml
//	lcdbankd -dry-run -log-level debug
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zpin/lcdbank"
	"github.com/zpin/lcdbank/config"
	"github.com/zpin/lcdbank/glyph"
	"github.com/zpin/lcdbank/hal"
	"github.com/zpin/lcdbank/server"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to the YAML configuration (default: built-in defaults)")
		listen     = flag.String("listen", "", "listen address, overrides the configuration")
		level      = flag.String("log-level", "info", "log level: debug, info, warn, error")
		dryRun     = flag.Bool("dry-run", false, "drive no hardware")
		poll       = flag.Duration("power-poll", 500*time.Millisecond, "power sense polling interval")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	lvl, err := zerolog.ParseLevel(*level)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid log level")
	}
	zerolog.SetGlobalLevel(lvl)

	cfg := config.Default()
	if *configPath != "" {
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("failed to load configuration")
		}
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *dryRun {
		cfg.GPIO.Backend = string(hal.DryRun)
	}

	board, err := hal.Open(cfg.HAL(), log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize hardware")
	}
	bank, err := newBank(cfg, board, log.Logger)
	if err != nil {
		board.Close()
		log.Fatal().Err(err).Msg("failed to set up displays")
	}
	defer func() {
		if err := bank.Close(); err != nil {
			log.Error().Err(err).Msg("failed to release hardware")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if board.Power == nil {
		if err := bank.InitAll(); err != nil {
			log.Error().Err(err).Msg("init failed")
		}
	} else {
		go watchPower(ctx, bank, *poll)
	}

	srv := server.New(bank, &log.Logger)
	if err := srv.ListenAndServe(ctx, cfg.Listen); err != nil {
		log.Error().Err(err).Msg("server failed")
	}
	log.Info().Msg("shutting down")
}

// newBank creates the bank described by cfg on board.
func newBank(cfg *config.Config, board *hal.Board, l zerolog.Logger) (*lcdbank.Bank, error) {
	opts := &lcdbank.BankOpts{
		Slots:       cfg.Slots,
		ShiftDelay:  cfg.ShiftDelay,
		MediaDir:    cfg.MediaDir,
		PowerSettle: cfg.PowerSettle,
		Logger:      &l,
	}
	if cfg.Font != "" {
		f, err := glyph.Load(cfg.Font)
		if err != nil {
			return nil, err
		}
		opts.Font = f
	}
	bank, err := lcdbank.NewBank(board, opts)
	if err != nil {
		return nil, err
	}
	for _, d := range cfg.Displays {
		popts, o, err := d.Panel(cfg.Order())
		if err != nil {
			return nil, err
		}
		if _, err := bank.AddDisplay(d.Slot, d.Name, popts, o); err != nil {
			return nil, err
		}
	}
	l.Info().Int("slots", bank.Slots()).Int("displays", len(bank.Displays())).Msg("bank ready")
	return bank, nil
}

// watchPower polls the power sense line until ctx is done.
func watchPower(ctx context.Context, bank *lcdbank.Bank, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		if err := bank.CheckPower(); err != nil {
			log.Error().Err(err).Msg("power check failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
