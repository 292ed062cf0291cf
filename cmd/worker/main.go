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

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/mark3748/sla-notifier/internal/calendar"
	"github.com/mark3748/sla-notifier/internal/config"
	"github.com/mark3748/sla-notifier/internal/notify"
	"github.com/mark3748/sla-notifier/internal/optin"
	"github.com/mark3748/sla-notifier/internal/poller"
	"github.com/mark3748/sla-notifier/internal/sla"
	"github.com/mark3748/sla-notifier/internal/store"
	"github.com/mark3748/sla-notifier/internal/ticketing"
)

type flags struct {
	once        bool
	configPath  string
	ignoreHours bool
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := pflag.NewFlagSet("sla-worker", pflag.ContinueOnError)
	fs.BoolVar(&f.once, "once", false, "run a single pass and exit")
	fs.StringVar(&f.configPath, "config", "", "YAML config file (default: $SLA_CONFIG_FILE)")
	fs.BoolVar(&f.ignoreHours, "ignore-business-hours", false, "poll outside business hours")
	if err := fs.Parse(args); err != nil {
		return flags{}, err
	}
	if fs.NArg() > 0 {
		return flags{}, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return f, nil
}

func main() {
	f, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	cfg.SetupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, f); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("worker")
	}
}

func run(ctx context.Context, cfg config.Config, f flags) error {
	stores, err := store.Open(ctx, store.Options{
		Backend:     cfg.StoreBackend,
		DataDir:     cfg.DataDir,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		return err
	}
	defer stores.Close()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error().Err(err).Msg("redis ping")
		}
		defer rdb.Close()
	}

	p, err := newPoller(cfg, f, stores, rdb)
	if err != nil {
		return err
	}
	if f.once {
		_, err := p.RunOnce(ctx)
		return err
	}
	log.Info().Dur("interval", cfg.PollInterval).Msg("worker started")
	return p.Run(ctx)
}

func newPoller(cfg config.Config, f flags, stores *store.Stores, rdb *redis.Client) (*poller.Poller, error) {
	if cfg.TicketingBaseURL == "" {
		return nil, errors.New("TICKETING_BASE_URL is required")
	}
	cal, err := cfg.Calendar()
	if err != nil {
		return nil, err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	resolver := calendar.NewResolver(cal, nil)

	opts := []sla.Option{
		sla.WithElapsed(resolver),
		sla.WithUnwarrantedTag(cfg.UnwarrantedTag),
	}
	var chat *notify.Chat
	if cfg.ChatWebhookURL != "" {
		chat = notify.NewChat(cfg.ChatWebhookURL, cfg.ChatRatePerSec, nil)
		opts = append(opts, sla.WithDispatcher(chat))
	} else {
		log.Warn().Msg("CHAT_WEBHOOK_URL not set; violations are recorded but not sent")
	}
	tracker := sla.NewTracker(stores.Records, policy, opts...)

	source := ticketing.New(cfg.TicketingBaseURL, cfg.TicketingToken, &http.Client{Timeout: 30 * time.Second})
	popts := []poller.Option{
		poller.WithAssignments(sla.NewAssignmentTracker(stores.Assignments)),
		poller.WithInterval(cfg.PollInterval),
		poller.WithEvents(rdb),
	}
	if chat != nil && rdb != nil {
		popts = append(popts, poller.WithNotifier(chat, optin.New(rdb, "")))
	}
	if f.ignoreHours {
		popts = append(popts, poller.IgnoreBusinessHours())
	}
	return poller.New(source, tracker, stores.Records, resolver, popts...), nil
}
