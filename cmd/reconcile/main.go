// Package main содержит утилиту сверки собранных сумм кампаний с реестром пожертвований.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mmeshcher/campaignfund/internal/repository"
	"github.com/mmeshcher/campaignfund/internal/service"
)

// environment описывает окружение выполнения команд.
type environment struct {
	Stdout io.Writer
	Logger *zap.Logger
}

// ApplyCmd учитывает пожертвования, которые ещё не попали в собранные суммы.
type ApplyCmd struct{}

// Run выполняет команду apply.
func (cmd *ApplyCmd) Run(ctx context.Context, env *environment, repo *repository.PostgresRepository) error {
	svc := service.NewService(repo, service.Deps{}, env.Logger)

	n, err := svc.ReconcileLedger(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(env.Stdout, "applied %d pending donation(s)\n", n)
	return nil
}

// ReportCmd печатает расхождения между собранными суммами и суммами пожертвований.
type ReportCmd struct {
	OnlyDrift bool `help:"show only campaigns whose collected amount differs from the donation sum."`
}

// Run выполняет команду report.
func (cmd *ReportCmd) Run(ctx context.Context, env *environment, repo *repository.PostgresRepository) error {
	rows, err := repo.LedgerDrift(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(env.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CAMPAIGN\tTITLE\tCOLLECTED\tDONATED\tDRIFT\tPENDING")
	for _, r := range rows {
		if cmd.OnlyDrift && r.Drift().IsZero() {
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			r.CampaignID, r.Title,
			r.CollectedAmount.StringFixed(2), r.DonatedAmount.StringFixed(2),
			r.Drift().StringFixed(2), r.PendingCount,
		)
	}
	return tw.Flush()
}

// CLI описывает команды утилиты.
type CLI struct {
	DatabaseURI string `name:"database-uri" short:"d" env:"DATABASE_URI" required:"" help:"PostgreSQL connection string."`

	Apply  ApplyCmd  `cmd:"" help:"apply pending donations to campaign collected amounts."`
	Report ReportCmd `cmd:"" help:"print per-campaign drift between collected amounts and donations."`
}

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := CLI{}
	cntx := kong.Parse(&app,
		kong.Name("reconcile"),
		kong.Description("campaign ledger reconciliation"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	repo, err := repository.NewPostgresRepository(app.DatabaseURI)
	cntx.FatalIfErrorf(err)
	defer repo.Close()

	err = cntx.Run(&environment{Stdout: os.Stdout, Logger: logger}, repo)
	cntx.FatalIfErrorf(err)
}
