package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/insightdelivered/bank-sms-notifier/internal/api"
	"github.com/insightdelivered/bank-sms-notifier/internal/app"
	"github.com/insightdelivered/bank-sms-notifier/internal/config"
	"github.com/insightdelivered/bank-sms-notifier/internal/extractor"
	"github.com/insightdelivered/bank-sms-notifier/internal/logger"
	"github.com/insightdelivered/bank-sms-notifier/internal/models"
	"github.com/insightdelivered/bank-sms-notifier/internal/notify"
	"github.com/insightdelivered/bank-sms-notifier/internal/parser"
	"github.com/insightdelivered/bank-sms-notifier/internal/relay"
	"github.com/insightdelivered/bank-sms-notifier/internal/store"
	"github.com/insightdelivered/bank-sms-notifier/internal/surface"
	"github.com/insightdelivered/bank-sms-notifier/internal/writer"
)

const shutdownTimeout = 30 * time.Second

func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	envFile := fs.String("env", ".env", "Path to an env file (ignored when missing)")
	return fs, envFile
}

func load(envFile string) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger.New(cfg.LogLevel), nil
}

func cmdRun(args []string) error {
	fs, envFile := newFlagSet("run")
	fs.Parse(args)

	cfg, log, err := load(*envFile)
	if err != nil {
		return err
	}
	if err := cfg.RequireRelay(); err != nil {
		return err
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	popups, err := popupConfig(cfg)
	if err != nil {
		return err
	}
	mgr, err := notify.NewManager(popups, buildSurface(cfg, log), notify.WithLogger(log))
	if err != nil {
		return fmt.Errorf("popup settings: %w", err)
	}

	notifier := app.New(st, mgr,
		app.WithLogger(log),
		app.WithWatchdogSchedule(cfg.WatchdogSchedule),
		app.WithStatsSchedule(cfg.StatsSchedule),
	)
	stream, err := relay.NewStreamClient(cfg.PushbulletAPIKey, notifier.HandleEvent,
		relay.WithLogger(log),
		relay.WithStreamURL(cfg.PushbulletStreamURL),
		relay.WithAPI(relay.NewClient(cfg.PushbulletAPIURL, cfg.PushbulletAPIKey)),
	)
	if err != nil {
		return err
	}
	notifier.AttachStream(stream)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := notifier.Start(ctx); err != nil {
		stream.Close()
		mgr.Shutdown()
		return err
	}

	httpApp := api.NewApp(&api.Handler{
		Store:     st,
		Popups:    mgr,
		Relay:     stream,
		Balances:  notifier.Balances(),
		MaxPopups: cfg.MaxPopups,
		Log:       log,
	})
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP API listening")
		if err := httpApp.Listen(cfg.HTTPAddr); err != nil {
			log.Error().Err(err).Msg("HTTP API stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down notifier...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpApp.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping HTTP API")
	}
	if err := notifier.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Notifier exited")
	return nil
}

func popupConfig(cfg *config.Config) (notify.Config, error) {
	corner, err := notify.ParseCorner(cfg.PopupPosition)
	if err != nil {
		return notify.Config{}, err
	}
	metrics := notify.RegularMetrics
	if cfg.HideTransactionDetails {
		metrics = notify.CompactMetrics
	}
	return notify.Config{
		MaxSlots:   cfg.MaxPopups,
		AutoExpire: cfg.AutoCloseDelay,
		Corner:     corner,
		Metrics:    metrics,
		WorkArea:   notify.Rect{Width: cfg.ScreenWidth, Height: cfg.ScreenHeight},
		Compact:    cfg.HideTransactionDetails,
	}, nil
}

// buildSurface always logs popups and mirrors them to Telegram when a bot
// is configured.
func buildSurface(cfg *config.Config, log zerolog.Logger) notify.Surface {
	logSurface := surface.NewLog(log)
	if !cfg.TelegramEnabled() {
		return logSurface
	}
	bot, err := surface.NewBot(cfg.TelegramBotToken)
	if err != nil {
		log.Warn().Err(err).Msg("Telegram disabled")
		return logSurface
	}
	return surface.NewFanout(log, logSurface, surface.NewTelegram(bot, cfg.TelegramChatID, log))
}

// messageArg returns the SMS text from the arguments or, when none are
// given, from standard input.
func messageArg(args []string, in io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(bufio.NewReader(in))
	if err != nil {
		return "", fmt.Errorf("reading message: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cmdParse(args []string) error {
	fs := flag.NewFlagSet("parse", flag.ExitOnError)
	sender := fs.String("sender", "", "Sender name shown when parsing fails")
	fs.Parse(args)

	text, err := messageArg(fs.Args(), os.Stdin)
	if err != nil {
		return err
	}
	tx := parser.Parse(text, *sender)
	if err := printJSON(os.Stdout, tx); err != nil {
		return err
	}
	if !tx.IsValid {
		return errors.New(tx.Error)
	}
	return nil
}

func cmdValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	fs.Parse(args)

	text, err := messageArg(fs.Args(), os.Stdin)
	if err != nil {
		return err
	}
	res := parser.Validate(text)
	if err := printJSON(os.Stdout, res); err != nil {
		return err
	}
	if !res.IsValid {
		return errors.New(res.Error)
	}
	return nil
}

func cmdSamples(args []string) error {
	fs := flag.NewFlagSet("samples", flag.ExitOnError)
	parsed := fs.Bool("parse", false, "Print the parsed transactions instead of the raw SMS")
	fs.Parse(args)

	samples := parser.SampleMessages()
	banks := make([]string, 0, len(samples))
	for b := range samples {
		banks = append(banks, string(b))
	}
	sort.Strings(banks)

	for _, b := range banks {
		text := samples[models.Bank(b)]
		if *parsed {
			if err := printJSON(os.Stdout, parser.Parse(text, "")); err != nil {
				return err
			}
			continue
		}
		fmt.Printf("%s:\n  %s\n", models.Bank(b).DisplayName(), text)
	}
	return nil
}

func cmdBackfill(args []string) error {
	fs, envFile := newFlagSet("backfill")
	dryRun := fs.Bool("dry-run", false, "Parse only, do not write to the database")
	csvPath := fs.String("csv", "", "Also write the parsed transactions to this CSV file")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return errors.New("backfill needs at least one archive file")
	}
	cfg, log, err := load(*envFile)
	if err != nil {
		return err
	}

	var st *store.Store
	if !*dryRun {
		if st, err = store.Open(cfg.DatabasePath); err != nil {
			return err
		}
		defer st.Close()
	}

	var all []models.Transaction
	for _, path := range fs.Args() {
		msgs, err := extractor.ExtractMessages(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		saved, skipped := 0, 0
		for _, text := range msgs {
			tx := parser.Parse(text, "")
			if !tx.IsValid {
				skipped++
				log.Debug().Str("reason", tx.Error).Msg("skipping message")
				continue
			}
			all = append(all, tx)
			if st == nil {
				continue
			}
			if res := st.Save(context.Background(), tx); !res.Success {
				log.Warn().Str("error", res.Error).Msg("saving transaction failed")
				continue
			}
			saved++
		}
		log.Info().Str("file", path).Int("messages", len(msgs)).Int("saved", saved).Int("skipped", skipped).Msg("archive processed")
	}

	if *csvPath != "" {
		w := &writer.CSVWriter{IncludeHeader: true, Source: strings.Join(fs.Args(), " ")}
		if err := w.WriteToFile(*csvPath, all); err != nil {
			return fmt.Errorf("CSV write failed: %w", err)
		}
		fmt.Printf("Output: %s\n", *csvPath)
	}
	fmt.Printf("Found %d transaction(s)\n", len(all))
	return nil
}

func cmdExport(args []string) error {
	fs, envFile := newFlagSet("export")
	bank := fs.String("bank", "", "Only export this bank (vietinbank, vietcombank)")
	limit := fs.Int("limit", 500, "Maximum number of transactions")
	output := fs.String("output", "", "CSV file path (defaults to standard output)")
	fs.Parse(args)

	cfg, _, err := load(*envFile)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	var recs []store.Record
	if *bank != "" {
		recs, err = st.ByBank(context.Background(), *bank, *limit)
	} else {
		recs, err = st.Recent(context.Background(), *limit)
	}
	if err != nil {
		return err
	}
	txs := make([]models.Transaction, 0, len(recs))
	for _, r := range recs {
		txs = append(txs, r.Transaction())
	}

	w := &writer.CSVWriter{IncludeHeader: true, Source: cfg.DatabasePath}
	if *output == "" {
		return w.Write(os.Stdout, txs)
	}
	return w.WriteToFile(*output, txs)
}

func cmdHistory(args []string) error {
	fs, envFile := newFlagSet("history")
	limit := fs.Int("limit", 50, "Maximum number of pushes to fetch")
	since := fs.Duration("since", 24*time.Hour, "How far back to look")
	fs.Parse(args)

	cfg, _, err := load(*envFile)
	if err != nil {
		return err
	}
	if err := cfg.RequireRelay(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := relay.NewClient(cfg.PushbulletAPIURL, cfg.PushbulletAPIKey)
	now := time.Now()
	pushes, err := client.History(ctx, *limit, now.Add(-*since))
	if err != nil {
		return err
	}
	txs := relay.Transactions(pushes, now)
	fmt.Fprintf(os.Stderr, "%d push(es), %d bank transaction(s)\n", len(pushes), len(txs))
	if txs == nil {
		txs = []models.Transaction{}
	}
	return printJSON(os.Stdout, txs)
}

func cmdTestRelay(args []string) error {
	fs, envFile := newFlagSet("test-relay")
	fs.Parse(args)

	cfg, _, err := load(*envFile)
	if err != nil {
		return err
	}
	if err := cfg.RequireRelay(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	res := relay.ProbeIdentity(ctx, relay.NewClient(cfg.PushbulletAPIURL, cfg.PushbulletAPIKey))
	if err := printJSON(os.Stdout, res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("token %s rejected: %s", relay.MaskKey(cfg.PushbulletAPIKey), res.Error)
	}
	return nil
}
