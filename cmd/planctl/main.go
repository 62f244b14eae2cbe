// Command planctl is the operator CLI for the compensation engine
// (spec.md §6). It talks directly to the wired engine services in
// internal/app rather than to an HTTP API, since HTTP routing is out
// of scope (SPEC_FULL.md §6) — grounded in the teacher's slctl
// flag-parsing/subcommand-dispatch idiom (cmd/slctl/main.go), adapted
// from "send an HTTP request" to "call a Go method".
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/r3e-network/mlm-compensation-engine/internal/app"
	"github.com/r3e-network/mlm-compensation-engine/internal/config"
	"github.com/r3e-network/mlm-compensation-engine/internal/diagnostics"
	"github.com/r3e-network/mlm-compensation-engine/internal/domain"
	"github.com/r3e-network/mlm-compensation-engine/internal/money"
	"github.com/r3e-network/mlm-compensation-engine/internal/plan"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return errors.New("no command specified")
	}

	cmd := args[0]
	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printRootUsage()
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}
	defer application.Close()

	switch cmd {
	case "generate-epins":
		return handleGenerateEPINs(ctx, application, args[1:])
	case "trigger-session":
		return handleTriggerSession(ctx, application, args[1:])
	case "distribute-monthly-funds":
		return handleDistributeMonthlyFunds(ctx, application, args[1:])
	case "allocate-travel-fund":
		return handleAllocateTravelFund(ctx, application, args[1:])
	case "recalculate-ranks":
		return handleRecalculateRanks(ctx, application, args[1:])
	case "admin-credit":
		return handleAdminCredit(ctx, application, args[1:])
	case "admin-approve-withdraw":
		return handleAdminApproveWithdraw(ctx, application, args[1:])
	case "status":
		return handleStatus(ctx, application)
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printRootUsage() {
	fmt.Println(`planctl - compensation engine admin CLI

Usage:
  planctl <command> [flags]

Commands:
  generate-epins           Mint a batch of EPIN codes for a package
  trigger-session           Run one of the 8 daily binary sessions (no-op if already run)
  distribute-monthly-funds  Distribute the car and house fund pools for a month
  allocate-travel-fund      Allocate the yearly travel fund across national/international tiers
  recalculate-ranks         Re-apply rank promotion for one user after a manual data correction
  admin-credit              Credit a user's wallet out of band
  admin-approve-withdraw    Finalize a previously held withdrawal
  status                    Report host diagnostics`)
}

func handleGenerateEPINs(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("generate-epins", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	pkg := fs.String("package", "", "Package code (silver|gold|ruby), required")
	qty := fs.Int("qty", 1, "Number of EPINs to mint")
	createdBy := fs.String("created-by", "admin", "Identifier of the operator minting these codes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *pkg == "" {
		return errors.New("--package is required")
	}
	codes, err := a.EPIN.Generate(ctx, *qty, plan.PackageCode(*pkg), *createdBy)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"codes": codes, "count": len(codes)})
}

func handleTriggerSession(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("trigger-session", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	index := fs.Int("index", 0, "Session index 1-8, required")
	dateKey := fs.String("date", "", "Date key YYYY-MM-DD (defaults to today in the configured timezone)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *index < 1 || *index > 8 {
		return fmt.Errorf("--index must be between 1 and 8, got %d", *index)
	}
	key := *dateKey
	if key == "" {
		key = todayInTimezone(a.Config.Timezone)
	}
	report, err := a.Binary.RunSession(ctx, key, *index)
	if err != nil {
		return err
	}
	errStrings := make([]string, len(report.Errors))
	for i, e := range report.Errors {
		errStrings[i] = e.Error()
	}
	return printJSON(map[string]any{
		"already_processed": report.AlreadyProcessed,
		"pairs_matched":     report.PairsMatched,
		"errors":            errStrings,
	})
}

func handleDistributeMonthlyFunds(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("distribute-monthly-funds", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	month := fs.String("month", "", "Month key YYYY-MM, required")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *month == "" {
		return errors.New("--month is required (format YYYY-MM)")
	}
	carReport, err := a.Fund.DistributeCarFund(ctx, *month)
	if err != nil {
		return fmt.Errorf("car fund: %w", err)
	}
	houseReport, err := a.Fund.DistributeHouseFund(ctx, *month)
	if err != nil {
		return fmt.Errorf("house fund: %w", err)
	}
	return printJSON(map[string]any{"car": carReport, "house": houseReport})
}

func handleAllocateTravelFund(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("allocate-travel-fund", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	year := fs.Int("year", 0, "Year, required")
	total := fs.Int64("total", 0, "Total travel fund amount to allocate, in whole currency units, required")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *year == 0 || *total <= 0 {
		return errors.New("--year and a positive --total are required")
	}
	allocation, err := a.Fund.AllocateTravelFund(ctx, *year, money.FromWhole(*total))
	if err != nil {
		return err
	}
	return printJSON(allocation)
}

func handleRecalculateRanks(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("recalculate-ranks", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	userID := fs.String("user", "", "User ID to recalculate, required")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" {
		return errors.New("--user is required")
	}
	if err := a.Rank.RecalculateUser(ctx, *userID); err != nil {
		return err
	}
	fmt.Println("recalculation complete")
	return nil
}

func handleAdminCredit(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("admin-credit", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	userID := fs.String("user", "", "User ID to credit, required")
	amount := fs.Int64("amount", 0, "Amount to credit, in whole currency units, required positive")
	note := fs.String("note", "", "Operator note explaining the credit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" || *amount <= 0 {
		return errors.New("--user and a positive --amount are required")
	}
	txID, err := a.Ledger.Credit(ctx, *userID, money.FromWhole(*amount), domain.CategoryAdmin, nil, *note)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"tx_id": txID})
}

func handleAdminApproveWithdraw(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("admin-approve-withdraw", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	userID := fs.String("user", "", "User ID the withdrawal hold belongs to, required")
	txID := fs.String("tx-id", "", "The hold's ledger tx ID, required")
	amount := fs.Int64("amount", 0, "Amount held, in whole currency units, required positive")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" || *txID == "" || *amount <= 0 {
		return errors.New("--user, --tx-id, and a positive --amount are required")
	}
	finalizeTxID, err := a.Ledger.Finalize(ctx, *userID, money.FromWhole(*amount), []string{*txID})
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"tx_id": finalizeTxID})
}

func handleStatus(ctx context.Context, a *app.App) error {
	report := diagnostics.Collect(ctx)
	if err := a.Store.HealthCheck(ctx); err != nil {
		return printJSON(map[string]any{"host": report, "store_healthy": false, "store_error": err.Error()})
	}
	return printJSON(map[string]any{"host": report, "store_healthy": true})
}

func todayInTimezone(timezone string) string {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	return time.Now().In(loc).Format("2006-01-02")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
