package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/enxi-erp/reconcile-backend/internal/application/service"
	"github.com/enxi-erp/reconcile-backend/internal/application/session"
	"github.com/enxi-erp/reconcile-backend/internal/domain/ledger"
	"github.com/enxi-erp/reconcile-backend/internal/domain/matcher"
	"github.com/enxi-erp/reconcile-backend/internal/infrastructure/config"
	"github.com/enxi-erp/reconcile-backend/internal/infrastructure/storage"
	"github.com/enxi-erp/reconcile-backend/internal/observability"
)

const dateLayout = "2006-01-02"

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file path")
		start      = flag.String("start", "", "Period start (YYYY-MM-DD)")
		end        = flag.String("end", "", "Period end (YYYY-MM-DD)")
		account    = flag.String("account", "", "Bank account ID (empty = all)")
		opening    = flag.String("opening", "0", "Opening balance")
		closing    = flag.String("closing", "0", "Closing balance")
		commit     = flag.Bool("commit", false, "Finalize and persist the reconciliation")
		seed       = flag.Bool("seed", false, "Seed the database with demo data first")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	cfg := loadConfig(*configFile)

	loggingCfg := cfg.Observability.Logging
	if *verbose {
		loggingCfg.Level = "debug"
	}
	logger := observability.NewLogger(loggingCfg)

	if *start == "" || *end == "" {
		fmt.Fprintln(os.Stderr, "usage: reconcile -start YYYY-MM-DD -end YYYY-MM-DD [-account ID] [-opening N] [-closing N] [-commit] [-seed]")
		os.Exit(2)
	}

	periodStart, err := time.Parse(dateLayout, *start)
	if err != nil {
		fatal(logger, "invalid -start date", err)
	}
	periodEnd, err := time.Parse(dateLayout, *end)
	if err != nil {
		fatal(logger, "invalid -end date", err)
	}
	openingBal, err := decimal.NewFromString(*opening)
	if err != nil {
		fatal(logger, "invalid -opening balance", err)
	}
	closingBal, err := decimal.NewFromString(*closing)
	if err != nil {
		fatal(logger, "invalid -closing balance", err)
	}

	rules, err := cfg.Matching.Rules()
	if err != nil {
		fatal(logger, "invalid matching configuration", err)
	}

	store, err := storage.NewStore(cfg.Storage.DatabasePath)
	if err != nil {
		fatal(logger, "failed to initialize storage", err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()

	if *seed {
		if err := storage.SeedDemoData(ctx, store); err != nil {
			fatal(logger, "failed to seed demo data", err)
		}
		logger.Info("seeded demo data")
	}

	matching := session.LocalMatcher{Engine: matcher.NewEngine(matcher.DefaultWeights())}
	sessions := service.New(store, matching, store, logger)

	handle, err := sessions.Create(ctx, service.CreateRequest{
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		BankAccountID:  *account,
		OpeningBalance: openingBal,
		ClosingBalance: closingBal,
	})
	if err != nil {
		fatal(logger, "failed to open session", err)
	}

	matches, err := handle.Session.RequestAutoMatch(ctx, rules)
	if err != nil {
		fatal(logger, "auto-match failed", err)
	}

	printReport(handle, matches)

	if !*commit {
		logger.Info("dry run complete; re-run with -commit to finalize")
		return
	}

	if err := handle.Session.Finalize(ctx); err != nil {
		fatal(logger, "finalize failed", err)
	}
	logger.Info("reconciliation finalized",
		slog.String("session", handle.ID),
		slog.Int("matches", len(matches)),
	)
}

func printReport(handle *service.Handle, matches []ledger.Match) {
	summary := handle.Session.Summary()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Session:\t%s\n", handle.ID)
	fmt.Fprintf(w, "State:\t%s\n", handle.Session.State())
	fmt.Fprintf(w, "Total credits:\t%s\n", summary.Balance.TotalCredits)
	fmt.Fprintf(w, "Total debits:\t%s\n", summary.Balance.TotalDebits)
	fmt.Fprintf(w, "Calculated balance:\t%s\n", summary.Balance.CalculatedBalance)
	fmt.Fprintf(w, "Difference:\t%s\n", summary.Balance.BalanceDifference)
	fmt.Fprintf(w, "Balanced:\t%t\n", summary.Balance.IsBalanced)
	fmt.Fprintf(w, "Matches:\t%d\n", summary.MatchCount)
	fmt.Fprintf(w, "Unmatched credits:\t%d\n", summary.UnmatchedCreditCount)
	fmt.Fprintf(w, "Unreconciled payments:\t%d\n", summary.UnreconciledPaymentCount)
	_ = w.Flush()

	if len(matches) > 0 {
		fmt.Println()
		w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TRANSACTION\tPAYMENT\tCONFIDENCE\tTYPE")
		for _, m := range matches {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", m.BankTransactionID, m.PaymentID, m.Confidence, m.Type)
		}
		_ = w.Flush()
	}

	for _, d := range summary.DuplicateSuspects {
		fmt.Printf("\nwarning: %s and %s look like the same movement (similarity %.2f)\n",
			d.TransactionID, d.OtherTransactionID, d.Similarity)
	}
}

func loadConfig(configFile string) *config.Config {
	if configFile != "" {
		return config.LoadOrEnvWithPath(configFile)
	}
	return config.LoadOrEnv()
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, slog.String("error", err.Error()))
	os.Exit(1)
}
