// Command billingctl runs maintenance tasks against the billing store.
//
// USAGE:
//
//	billingctl seed [-username admin] [-password admin] [-name Administrator] [-samples]
//	billingctl check [-username U]
//	billingctl clear -username U
//	billingctl assign-orphans -username U
//	billingctl reset-month (-username U | -all)
//
// It reads the same configuration as the server (.env and environment), so it
// always talks to the server's store and street cache.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/sakif/billing-tracker/internal/auth"
	"github.com/sakif/billing-tracker/internal/cache"
	"github.com/sakif/billing-tracker/internal/config"
	"github.com/sakif/billing-tracker/internal/service"
	"github.com/sakif/billing-tracker/internal/store"
)

const usage = `usage: billingctl <command> [flags]

commands:
  seed            create the admin user (and, with -samples, demo customers)
  check           print user and customer counts
  clear           delete every customer of a user
  assign-orphans  give customers without an owner to a user
  reset-month     mark customers unpaid for a new billing month
`

// errUsage means the arguments were wrong; the message has already been printed.
var errUsage = errors.New("usage")

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	db, err := store.Open(openCtx, cfg)
	cancel()
	if err != nil {
		logger.Error("failed to open store", slog.String("store", store.Describe(cfg)), slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	var streets cache.StreetCache = cache.Noop{}
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.StreetCacheTTL)
		if err != nil {
			logger.Warn("redis unavailable, cached street summaries may be stale until they expire",
				slog.String("error", err.Error()))
		} else {
			defer rc.Close()
			streets = rc
		}
	}

	svc := service.NewMaintenanceService(db, auth.NewPasswordService(cfg.BcryptCost), streets, logger)

	if err := run(ctx, svc, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			logger.Error("command failed", slog.String("command", os.Args[1]), slog.String("error", err.Error()))
		}
		// os.Exit skips deferred calls.
		stop()
		db.Close()
		os.Exit(1)
	}
}

// run executes one command. Results go to stdout; flag errors go to stderr.
func run(ctx context.Context, svc *service.MaintenanceService, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errUsage
	}

	cmd, args := args[0], args[1:]
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	defaultUser := ""
	if cmd == "seed" {
		defaultUser = "admin"
	}
	username := fs.String("username", defaultUser, "user the command applies to")

	switch cmd {
	case "seed":
		password := fs.String("password", "admin", "password for a newly created admin")
		name := fs.String("name", "Administrator", "display name for a newly created admin")
		samples := fs.Bool("samples", false, "insert the demo customer set")
		if err := fs.Parse(args); err != nil {
			return errUsage
		}

		user, created, err := svc.EnsureAdmin(ctx, *username, *password, *name)
		if err != nil {
			return err
		}
		if created {
			fmt.Fprintf(stdout, "created admin user %q\n", user.Username)
		} else {
			fmt.Fprintf(stdout, "user %q already exists\n", user.Username)
		}

		if *samples {
			inserted, skipped, err := svc.SeedSamples(ctx, user.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "sample customers: %d inserted, %d already present\n", inserted, skipped)
		}
		return nil

	case "check":
		if err := fs.Parse(args); err != nil {
			return errUsage
		}
		c, err := svc.Check(ctx, *username)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "users:     %d\n", c.Users)
		fmt.Fprintf(stdout, "customers: %d\n", c.Customers)
		fmt.Fprintf(stdout, "orphans:   %d\n", c.Orphans)
		if *username != "" {
			fmt.Fprintf(stdout, "\nstreets of %s:\n", *username)
			tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "STREET\tCUSTOMERS\tPAID\tUNPAID\tAMOUNT")
			for _, s := range c.Streets {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%.2f\n", s.Name, s.TotalCustomers, s.PaidCount, s.UnpaidCount, s.TotalAmount)
			}
			return tw.Flush()
		}
		return nil

	case "clear":
		if err := fs.Parse(args); err != nil {
			return errUsage
		}
		n, err := svc.Clear(ctx, *username)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "deleted %d customers of %s\n", n, *username)
		return nil

	case "assign-orphans":
		if err := fs.Parse(args); err != nil {
			return errUsage
		}
		n, err := svc.AssignOrphans(ctx, *username)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "assigned %d customers to %s\n", n, *username)
		return nil

	case "reset-month":
		all := fs.Bool("all", false, "reset every user's customers")
		if err := fs.Parse(args); err != nil {
			return errUsage
		}
		if *all == (*username != "") {
			fmt.Fprintln(stderr, "reset-month needs exactly one of -username or -all")
			return errUsage
		}
		n, err := svc.ResetMonth(ctx, *username, *all)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "reset %d customers to unpaid\n", n)
		return nil
	}

	fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
	return errUsage
}
