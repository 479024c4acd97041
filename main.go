package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"

	"github.com/xiaot623/gogo/concierge/config"
	"github.com/xiaot623/gogo/concierge/internal/adapter/booking"
	"github.com/xiaot623/gogo/concierge/internal/adapter/llm"
	"github.com/xiaot623/gogo/concierge/internal/adapter/mailer"
	"github.com/xiaot623/gogo/concierge/internal/adapter/payment"
	"github.com/xiaot623/gogo/concierge/internal/auth"
	"github.com/xiaot623/gogo/concierge/internal/domain"
	"github.com/xiaot623/gogo/concierge/internal/repository"
	"github.com/xiaot623/gogo/concierge/internal/service"
	"github.com/xiaot623/gogo/concierge/internal/tools"
	httpserver "github.com/xiaot623/gogo/concierge/internal/transport/http"
	"github.com/xiaot623/gogo/concierge/policy"
)

// globalOptions are shared by every command.
type globalOptions struct {
	Config string `short:"c" long:"config" env:"CONCIERGE_CONFIG" description:"Path to a YAML config file"`
}

var opts globalOptions

// load reads the configuration and builds the root logger.
func load() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, newLogger(cfg.Log, os.Stderr), nil
}

func newLogger(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("service", "concierge").Logger()
}

// serveCommand runs the HTTP server.
type serveCommand struct {
	SeedDays int `long:"seed-days" default:"0" description:"Seed default opening hours for the next N days"`
}

func (c *serveCommand) Execute([]string) error {
	cfg, logger, err := load()
	if err != nil {
		return err
	}

	logger.Info().
		Str("addr", cfg.HTTP.Addr).
		Str("llm_provider", cfg.LLM.Provider).
		Str("llm_model", cfg.LLM.Model).
		Msg("starting concierge")

	// Initialize store
	store, err := repository.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := wire(ctx, store, cfg, logger)
	if err != nil {
		return err
	}

	if c.SeedDays > 0 {
		seeded, err := booking.New(store, logger).Seed(ctx, time.Now().UTC(), c.SeedDays)
		if err != nil {
			return fmt.Errorf("failed to seed slots: %w", err)
		}
		logger.Info().Int("days", seeded).Msg("seeded opening hours")
	}

	e := httpserver.NewServer(svc, auth.NewTokenService(cfg.Auth.JWTSecret), cfg, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := e.Start(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info().Str("addr", cfg.HTTP.Addr).Msg("API started")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	}

	logger.Info().Msg("shutting down concierge")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server gracefully")
	}
	logger.Info().Msg("concierge stopped")
	return nil
}

// wire builds the service graph over an opened store.
func wire(ctx context.Context, store *repository.SQLiteStore, cfg *config.Config, logger zerolog.Logger) (*service.Service, error) {
	llmClient, err := llm.NewLLMClient(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	policySource := policy.DefaultPolicy
	if cfg.Policy.File != "" {
		raw, err := os.ReadFile(cfg.Policy.File)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file: %w", err)
		}
		policySource = string(raw)
	}
	engine, err := policy.NewEngine(ctx, policySource)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	bookings := booking.New(store, logger)
	registry := tools.NewRegistry()
	if err := tools.RegisterBuiltins(registry, tools.Capabilities{
		Slots:    bookings,
		Reserver: bookings,
		Payments: payment.New(store, cfg.Payment, logger),
		Mail:     mailer.New(store, cfg.Mail, logger),
		Users:    auth.NewUsers(store),
	}); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return service.New(store, registry, engine, llmClient, cfg, logger)
}

// tokenCommand issues a bearer token for local testing.
type tokenCommand struct {
	User   string        `long:"user" required:"true" description:"Subject (user id)"`
	Role   string        `long:"role" default:"user" description:"Role claim: user, assistant or admin"`
	Scopes []string      `long:"scope" description:"Scope claim (repeatable)"`
	TTL    time.Duration `long:"ttl" description:"Token lifetime (default auth.token_ttl)"`

	out io.Writer
}

func (c *tokenCommand) Execute([]string) error {
	cfg, _, err := load()
	if err != nil {
		return err
	}
	role := domain.Role(c.Role)
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", c.Role)
	}
	ttl := c.TTL
	if ttl == 0 {
		ttl = cfg.Auth.TokenTTL
	}
	token, err := auth.NewTokenService(cfg.Auth.JWTSecret).Issue(domain.Identity{
		ID:     c.User,
		Role:   role,
		Scopes: c.Scopes,
	}, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.output(), token)
	return err
}

func (c *tokenCommand) output() io.Writer {
	if c.out != nil {
		return c.out
	}
	return os.Stdout
}

// migrateCommand applies pending migrations.
type migrateCommand struct{}

func (c *migrateCommand) Execute([]string) error {
	cfg, logger, err := load()
	if err != nil {
		return err
	}
	store, err := repository.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}
	defer store.Close()

	version, err := store.Migrate(context.Background())
	if err != nil {
		return err
	}
	logger.Info().Int64("version", version).Msg("database is up to date")
	return nil
}

// seedCommand configures default opening hours.
type seedCommand struct {
	Days int    `long:"days" default:"30" description:"Number of days to seed"`
	From string `long:"from" description:"First day (YYYY-MM-DD, default today)"`
}

func (c *seedCommand) Execute([]string) error {
	cfg, logger, err := load()
	if err != nil {
		return err
	}
	from := time.Now().UTC()
	if c.From != "" {
		if from, err = time.Parse(time.DateOnly, c.From); err != nil {
			return fmt.Errorf("invalid --from: %w", err)
		}
	}

	store, err := repository.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer store.Close()

	seeded, err := booking.New(store, logger).Seed(context.Background(), from, c.Days)
	if err != nil {
		return err
	}
	logger.Info().Int("days", seeded).Str("from", from.Format(time.DateOnly)).Msg("seeded opening hours")
	return nil
}

// userCommand registers a user that the validateUser tool can check.
type userCommand struct {
	Username string `long:"username" required:"true"`
	Email    string `long:"email" required:"true"`
	Password string `long:"password" required:"true" env:"CONCIERGE_USER_PASSWORD"`
	Role     string `long:"role" default:"user" description:"user, assistant or admin"`
}

func (c *userCommand) Execute([]string) error {
	cfg, logger, err := load()
	if err != nil {
		return err
	}
	store, err := repository.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer store.Close()

	user, err := auth.NewUsers(store).Register(context.Background(), c.Username, c.Email, c.Password, domain.Role(c.Role))
	if err != nil {
		return err
	}
	logger.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("user registered")
	return nil
}

func newParser() *flags.Parser {
	parser := flags.NewParser(&opts, flags.Default)
	parser.LongDescription = "Tool-augmented booking agent with per-user cost caps."

	commands := []struct {
		name, short string
		data        any
	}{
		{"serve", "Run the HTTP server", &serveCommand{}},
		{"token", "Issue a bearer token", &tokenCommand{}},
		{"migrate", "Apply database migrations", &migrateCommand{}},
		{"seed", "Seed default opening hours", &seedCommand{}},
		{"user", "Register a user", &userCommand{}},
	}
	for _, cmd := range commands {
		if _, err := parser.AddCommand(cmd.name, cmd.short, "", cmd.data); err != nil {
			panic(err)
		}
	}
	return parser
}

func main() {
	if _, err := newParser().Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
			os.Exit(2)
		}
		os.Exit(1)
	}
}
