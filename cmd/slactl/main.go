package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/mark3748/sla-notifier/internal/config"
	"github.com/mark3748/sla-notifier/internal/optin"
	"github.com/mark3748/sla-notifier/internal/sla"
	"github.com/mark3748/sla-notifier/internal/store"
)

const usage = `usage: slactl [--config file] <command>

commands:
  optin add <email>      subscribe an agent to assignment notices
  optin remove <email>   unsubscribe an agent
  optin list             list subscribed agents
  stats                  print compliance stats as JSON
  ticket <id>            print one tracking record as JSON
`

type deps struct {
	optins   *optin.Registry
	reporter *sla.Reporter
}

func main() {
	var configPath string
	fs := pflag.NewFlagSet("slactl", pflag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "YAML config file (default: $SLA_CONFIG_FILE)")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	ctx := context.Background()
	stores, err := store.Open(ctx, store.Options{Backend: cfg.StoreBackend, DataDir: cfg.DataDir, DatabaseURL: cfg.DatabaseURL})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer stores.Close()
	d := deps{reporter: sla.NewReporter(stores.Records, stores.Assignments)}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		d.optins = optin.New(rdb, "")
	}
	if err := run(ctx, fs.Args(), os.Stdout, d); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer, d deps) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return nil
	}
	switch args[0] {
	case "optin":
		return runOptIn(ctx, args[1:], out, d.optins)
	case "stats":
		st, err := d.reporter.GetStats(ctx, sla.Filter{})
		if err != nil {
			return err
		}
		return printJSON(out, st)
	case "ticket":
		if len(args) < 2 {
			return errors.New("ticket id required")
		}
		rec, err := d.reporter.GetTrackedTicket(ctx, args[1])
		if err != nil {
			return fmt.Errorf("ticket %s: %w", args[1], err)
		}
		return printJSON(out, rec)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runOptIn(ctx context.Context, args []string, out io.Writer, reg *optin.Registry) error {
	if reg == nil {
		return errors.New("REDIS_ADDR is not configured")
	}
	if len(args) == 0 {
		return errors.New("optin: add, remove or list required")
	}
	switch args[0] {
	case "list":
		emails, err := reg.List(ctx)
		if err != nil {
			return err
		}
		for _, e := range emails {
			fmt.Fprintln(out, e)
		}
		return nil
	case "add", "remove":
		if len(args) < 2 {
			return errors.New("email required")
		}
		var err error
		if args[0] == "add" {
			err = reg.OptIn(ctx, args[1])
		} else {
			err = reg.OptOut(ctx, args[1])
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "ok")
		return nil
	default:
		return fmt.Errorf("unknown optin command %q", args[0])
	}
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
