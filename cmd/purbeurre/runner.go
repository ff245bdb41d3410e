package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/sakif/pur-beurre/internal/apperror"
	"github.com/sakif/pur-beurre/internal/auth"
	"github.com/sakif/pur-beurre/internal/config"
	"github.com/sakif/pur-beurre/internal/importer"
	"github.com/sakif/pur-beurre/internal/logging"
	"github.com/sakif/pur-beurre/internal/openfoodfacts"
	"github.com/sakif/pur-beurre/internal/server"
	"github.com/sakif/pur-beurre/internal/service"
)

// Runner holds what every command needs and provides one method per command.
type Runner struct {
	output    io.Writer
	logOutput io.Writer
	// passwords is nil outside of tests (bcrypt default cost).
	passwords *auth.PasswordService
}

// RunnerOpts configures a Runner. Zero values mean stdout and stderr.
type RunnerOpts struct {
	Output    io.Writer
	LogOutput io.Writer
	Passwords *auth.PasswordService
}

// NewRunner creates a Runner.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}
	return &Runner{output: opts.Output, logOutput: opts.LogOutput, passwords: opts.Passwords}
}

// load reads the configuration named by --config and builds the logger.
func (r *Runner) load(cmd *cli.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(r.logOutput, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// Serve runs the web server until SIGINT or SIGTERM.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := r.load(cmd)
	if err != nil {
		return err
	}
	if port := cmd.Int("port"); port > 0 {
		cfg.Server.Port = int(port)
	}

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	return srv.Start()
}

// Import fills the database from Open Food Facts.
func (r *Runner) Import(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := r.load(cmd)
	if err != nil {
		return err
	}

	catalog := openfoodfacts.DefaultCatalog()
	opts := []openfoodfacts.Option{
		openfoodfacts.WithUserAgent(cfg.OpenFoodFacts.UserAgent),
		openfoodfacts.WithTimeout(cfg.OpenFoodFacts.Timeout),
	}
	// A catalog file carries its own base_url and page_size.
	if path := cmd.String("catalog"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading catalog: %w", err)
		}
		if catalog, err = openfoodfacts.ParseCatalog(data); err != nil {
			return err
		}
	} else {
		opts = append(opts,
			openfoodfacts.WithBaseURL(cfg.OpenFoodFacts.BaseURL),
			openfoodfacts.WithPageSize(cfg.OpenFoodFacts.PageSize),
		)
	}
	client := openfoodfacts.NewClient(catalog, opts...)

	categories := client.Catalog().Names()
	if only := cmd.StringSlice("category"); len(only) > 0 {
		for _, name := range only {
			if !client.Catalog().Contains(name) {
				return fmt.Errorf("unknown category %q (known: %s)", name, strings.Join(categories, ", "))
			}
		}
		categories = only
	}

	store, err := server.OpenStore(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	im := importer.New(client, store, logger, importer.Options{
		Workers:           cfg.OpenFoodFacts.Workers,
		RequestsPerSecond: cfg.OpenFoodFacts.RequestsPerSecond,
	})

	logger.Info("import starting", slog.Int("categories", len(categories)))
	summary, err := im.Run(ctx, categories)
	if summary != nil {
		r.printSummary(summary)
	}
	return err
}

// Substitutes prints the ranked substitutes of the product with the given
// barcode.
func (r *Runner) Substitutes(ctx context.Context, cmd *cli.Command) error {
	code := strings.TrimSpace(cmd.StringArg("code"))
	if code == "" {
		return errors.New("missing barcode, usage: purbeurre substitutes <barcode>")
	}

	cfg, logger, err := r.load(cmd)
	if err != nil {
		return err
	}
	store, err := server.OpenStore(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	products := service.NewProductService(store, logger)
	product, err := products.FindByLabel(ctx, code)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return fmt.Errorf("no product with barcode %s", code)
		}
		return err
	}

	initial, subs, err := products.Substitutes(ctx, product.ID, int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	r.printSubstitutes(initial, subs)
	return nil
}

// CreateSuperuser creates an administrator account.
func (r *Runner) CreateSuperuser(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := r.load(cmd)
	if err != nil {
		return err
	}

	store, err := server.OpenStore(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.SessionDuration())
	if err != nil {
		return err
	}
	mailer, err := server.NewMailer(ctx, cfg.Mail)
	if err != nil {
		return err
	}
	passwords := r.passwords
	if passwords == nil {
		passwords = auth.NewPasswordService()
	}
	accounts := service.NewAccountService(store, store, tokens, passwords, mailer, logger, cfg.Auth.ResetDuration())

	user, err := accounts.CreateSuperuser(ctx, cmd.String("email"), cmd.String("password"), cmd.String("first-name"))
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Field != "" {
			return fmt.Errorf("%s: %s", appErr.Field, appErr.Message)
		}
		return err
	}

	r.printOK("superuser %s created (id %s)", user.Email, user.ID)
	return nil
}

// ConfigInit writes the default configuration file.
func (r *Runner) ConfigInit(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("output")
	if err := config.CreateConfigFile(path); err != nil {
		return err
	}
	r.printOK("configuration written to %s", path)
	r.printf("%s\n", styles.warn.Render("set auth.jwt_secret (or JWT_SECRET) before running purbeurre: openssl rand -hex 32"))
	return nil
}
