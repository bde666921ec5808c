// Command finboard-cli is the operator tool: it signs in to the finance API
// and prints or exports the same views the web dashboard shows.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"finboard/internal/api"
	"finboard/internal/cli"
	"finboard/internal/config"
	"finboard/internal/core"
	applog "finboard/internal/log"
	"finboard/internal/refresh"
	"finboard/internal/report"
	"finboard/internal/sheets/memory"
	"finboard/internal/storage"
)

const usage = `Usage: finboard-cli <command> [flags]

Commands:
  transactions  print the filtered transaction table and category summary
  accounts      list linked bank accounts
  sync          pull new transactions from the bank
  chart         write the category pie chart as SVG
  export        export the filtered view (Google Sheets or a dry run)
  runs          show recent refresh runs
  refresh       run one refresh now and record it

Run 'finboard-cli <command> -h' for the flags of a command.
`

type command struct {
	cfg    *config.Config
	logger *applog.Logger
	out    io.Writer
	now    func() time.Time
}

func main() {
	cli.LoadEnvFile()
	cfg := config.Load()
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: applog.ComponentCLI,
		Output:    os.Stderr,
	})
	applog.SetDefault(logger)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, cancel := cli.ShutdownContext(logger)
	defer cancel()

	c := &command{cfg: cfg, logger: logger, out: os.Stdout, now: time.Now}
	name, args := os.Args[1], os.Args[2:]

	var err error
	switch name {
	case "transactions":
		err = c.transactions(ctx, args)
	case "accounts":
		err = c.accounts(ctx, args)
	case "sync":
		err = c.sync(ctx, args)
	case "chart":
		err = c.chart(ctx, args)
	case "export":
		err = c.export(ctx, args)
	case "runs":
		err = c.runs(ctx, args)
	case "refresh":
		err = c.refresh(ctx, args)
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", name, usage)
		os.Exit(2)
	}
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logger.Error("Command failed", "command", name, applog.FieldError, err)
		fmt.Fprintln(os.Stderr, "error:", api.UserMessage(err, err.Error()))
		os.Exit(1)
	}
}

// credentials are the sign-in flags shared by every command that talks to
// the API. They default to the refresh worker's service account.
type credentials struct {
	username, password string
}

func (c *command) credentialFlags(fs *flag.FlagSet) *credentials {
	cr := &credentials{}
	fs.StringVar(&cr.username, "user", envOr("FINBOARD_USERNAME", c.cfg.RefreshUsername), "API username (FINBOARD_USERNAME)")
	fs.StringVar(&cr.password, "password", envOr("FINBOARD_PASSWORD", c.cfg.RefreshPassword), "API password (FINBOARD_PASSWORD)")
	return cr
}

// viewFlags are the time frame and filter flags of the derived view.
type viewFlags struct {
	frame, category, min, max string
}

func viewFlagSet(fs *flag.FlagSet) *viewFlags {
	v := &viewFlags{}
	fs.StringVar(&v.frame, "frame", core.Month.String(), "time frame: all, week, month, prevMonth, ytd, year")
	fs.StringVar(&v.category, "category", "", "only this category")
	fs.StringVar(&v.min, "min", "", "minimum amount")
	fs.StringVar(&v.max, "max", "", "maximum amount")
	return v
}

func (c *command) login(ctx context.Context, cr *credentials) (*api.Client, error) {
	if cr.username == "" || cr.password == "" {
		return nil, errors.New("username and password are required (-user, -password)")
	}
	client, err := api.New(api.Config{BaseURL: c.cfg.APIBaseURL, Timeout: c.cfg.APITimeout})
	if err != nil {
		return nil, err
	}
	if err := client.Login(ctx, cr.username, cr.password); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	c.logger.Debug("Signed in", applog.FieldOperation, applog.OpLogin, "api", c.cfg.APIBaseURL)
	return client, nil
}

// view signs in, fetches every transaction and derives the requested view.
func (c *command) view(ctx context.Context, cr *credentials, v *viewFlags) (core.ViewModel, error) {
	tf, err := core.ParseTimeFrame(v.frame)
	if err != nil {
		return core.ViewModel{}, err
	}
	client, err := c.login(ctx, cr)
	if err != nil {
		return core.ViewModel{}, err
	}
	txs, err := client.Transactions(ctx)
	if err != nil {
		return core.ViewModel{}, fmt.Errorf("fetch transactions: %w", err)
	}
	view := core.DeriveView(txs, tf, core.CriteriaFromInput(v.category, v.min, v.max), c.now())
	c.logger.Debug("View derived",
		applog.NewFields().
			WithOperation(applog.OpLoad).
			WithView(tf.String(), len(view.Transactions)).
			ToSlice()...)
	return view, nil
}

func (c *command) transactions(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("transactions", flag.ContinueOnError)
	cr := c.credentialFlags(fs)
	v := viewFlagSet(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	view, err := c.view(ctx, cr, v)
	if err != nil {
		return err
	}
	report.WriteTable(c.out, view, time.Local)
	return nil
}

func (c *command) accounts(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("accounts", flag.ContinueOnError)
	cr := c.credentialFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := c.login(ctx, cr)
	if err != nil {
		return err
	}
	accounts, err := client.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("fetch accounts: %w", err)
	}
	if len(accounts) == 0 {
		fmt.Fprintln(c.out, "No linked accounts")
		return nil
	}
	report.WriteAccountsTable(c.out, accounts)
	return nil
}

func (c *command) sync(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	cr := c.credentialFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := c.login(ctx, cr)
	if err != nil {
		return err
	}
	if err := client.ForceSync(ctx); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	txs, err := client.Transactions(ctx)
	if err != nil {
		return fmt.Errorf("fetch transactions: %w", err)
	}
	c.logger.Info("Transactions synced", applog.FieldOperation, applog.OpSync, applog.FieldCount, len(txs))
	fmt.Fprintf(c.out, "Synced, %d transactions available\n", len(txs))
	return nil
}

func (c *command) chart(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chart", flag.ContinueOnError)
	cr := c.credentialFlags(fs)
	v := viewFlagSet(fs)
	path := fs.String("o", "spending.svg", "output file")
	size := fs.Int("size", 480, "chart width and height in pixels")
	if err := fs.Parse(args); err != nil {
		return err
	}
	view, err := c.view(ctx, cr, v)
	if err != nil {
		return err
	}
	f, err := os.Create(*path)
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}
	if err := report.WritePieSVG(f, view.Summary, *size); err != nil {
		f.Close()
		return fmt.Errorf("render chart: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write chart file: %w", err)
	}
	fmt.Fprintf(c.out, "Wrote %s (%d categories, total %s)\n",
		*path, len(view.Summary.CategoryTotals), core.FormatCurrency(view.Summary.TotalExpenses))
	return nil
}

func (c *command) export(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	cr := c.credentialFlags(fs)
	v := viewFlagSet(fs)
	dryRun := fs.Bool("dry-run", false, "print the rows instead of writing them")
	if err := fs.Parse(args); err != nil {
		return err
	}
	view, err := c.view(ctx, cr, v)
	if err != nil {
		return err
	}
	title := fmt.Sprintf("Transactions: %s (%s)", view.TimeFrame.Label(), c.now().Format("2006-01-02 15:04"))

	if *dryRun || c.cfg.ExportBackend != "sheets" {
		store := memory.New(time.Local)
		if _, err := store.ExportView(ctx, title, view); err != nil {
			return err
		}
		for _, row := range store.Exports()[0].Rows {
			for i, cell := range row {
				if i > 0 {
					fmt.Fprint(c.out, "\t")
				}
				fmt.Fprint(c.out, cell)
			}
			fmt.Fprintln(c.out)
		}
		return nil
	}

	exporter, err := cli.NewExporter(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	ref, err := exporter.ExportView(ctx, title, view)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	c.logger.Info("View exported", applog.FieldOperation, applog.OpExport, applog.FieldCount, len(view.Transactions), "ref", ref)
	fmt.Fprintf(c.out, "Exported %d transactions to %s\n", len(view.Transactions), ref)
	return nil
}

func (c *command) runs(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	limit := fs.Int("n", 10, "number of runs to show")
	dbPath := fs.String("db", c.cfg.SQLiteDBPath, "refresh run database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	repo, err := storage.NewSQLiteRepository(*dbPath)
	if err != nil {
		return err
	}
	defer repo.Close()
	runs, err := repo.RecentRuns(ctx, *limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(c.out, "No refresh runs recorded")
		return nil
	}
	report.WriteRunsTable(c.out, runs, time.Local)
	return nil
}

// refresh runs the worker's job once, recording the run like a scheduled
// one would.
func (c *command) refresh(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("refresh", flag.ContinueOnError)
	cr := c.credentialFlags(fs)
	dbPath := fs.String("db", c.cfg.SQLiteDBPath, "refresh run database")
	publish := fs.Bool("publish", true, "publish the refresh event when AMQP is configured")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cr.username == "" || cr.password == "" {
		return errors.New("username and password are required (-user, -password)")
	}
	client, err := api.New(api.Config{BaseURL: c.cfg.APIBaseURL, Timeout: c.cfg.APITimeout})
	if err != nil {
		return err
	}
	repo, err := storage.NewSQLiteRepository(*dbPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	opts := []refresh.Option{refresh.WithCredentials(cr.username, cr.password)}
	if *publish {
		broker, err := cli.NewAMQPClient(c.cfg, c.logger)
		if err != nil {
			c.logger.Warn("AMQP unavailable, skipping refresh event", applog.FieldError, err)
		} else if broker != nil {
			defer broker.Close()
			opts = append(opts, refresh.WithPublisher(broker))
		}
	}

	run, err := refresh.NewJob(client, repo, opts...).Run(ctx, refresh.TriggerCLI)
	if err != nil {
		return fmt.Errorf("refresh run %s: %w", run.ID, err)
	}
	fmt.Fprintf(c.out, "Refresh %s: %d transactions, total %s, took %s\n",
		run.ID, run.TransactionCount, core.FormatCurrency(run.TotalAmount), run.Duration().Round(time.Millisecond))
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
