package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/haukened/nosend/internal/nosend/common/clock"
	"github.com/haukened/nosend/internal/nosend/common/log"
	"github.com/haukened/nosend/internal/nosend/config"
	"github.com/haukened/nosend/internal/nosend/domain"
	"github.com/haukened/nosend/internal/nosend/gateways/wire"
	"github.com/haukened/nosend/internal/nosend/repos/rulebook"
	"github.com/haukened/nosend/internal/nosend/repos/rulebook/bloom"
	"github.com/haukened/nosend/internal/nosend/repos/rulebook/bolt"
	"github.com/haukened/nosend/internal/nosend/repos/rulebook/lru"
	"github.com/haukened/nosend/internal/nosend/repos/rulefile"
	"github.com/haukened/nosend/internal/nosend/services/evaluator"
	"github.com/haukened/nosend/internal/nosend/services/gate"
	"github.com/haukened/nosend/internal/nosend/services/rules"
	"github.com/haukened/nosend/internal/nosend/services/validator"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "nosendd"

	// Exit codes
	exitAllowed = 0
	exitError   = 1
	exitDenied  = 3
)

const usage = "usage: " + appName + " <tenant-id> <list-id> [RFC3339 timestamp]"

// Application holds all the components of the no-send checker
type Application struct {
	config    *config.AppConfig
	store     rulebook.Store
	repo      rulebook.Repository
	validator *validator.RuleValidator
	rules     *rules.Service
	gate      *gate.Gate
}

// request is one parsed command line.
type request struct {
	key domain.ListKey
	at  time.Time // zero means now
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one check and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	req, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n%s\n", err, usage)
		return exitError
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return exitError
	}

	if err := log.Configure(cfg.Env, cfg.Log.Level); err != nil {
		fmt.Fprintf(stderr, "Logging configuration error: %v\n", err)
		return exitError
	}

	log.Info(map[string]any{
		"version":    version,
		"env":        cfg.Env,
		"log_level":  cfg.Log.Level,
		"store_path": cfg.Store.Path,
		"cache_size": cfg.Cache.Size,
		"cache_ttl":  cfg.Cache.TTL.String(),
		"filter":     cfg.Filter.Enabled,
		"rules_dir":  cfg.Rules.Dir,
		"timezone":   cfg.Timezone,
	}, "Starting nosendd")

	app, err := buildApplication(cfg)
	if err != nil {
		log.Error(map[string]any{"error": err.Error()}, "Failed to build application")
		return exitError
	}
	defer app.Close()

	if err := app.ImportRules(ctx); err != nil {
		log.Error(map[string]any{"error": err.Error()}, "Rule import failed")
		return exitError
	}

	view, err := app.Check(ctx, req)
	if err != nil {
		log.Error(map[string]any{"error": err.Error(), "list": req.key.String()}, "Check failed")
		return exitError
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(view); err != nil {
		fmt.Fprintf(stderr, "write decision: %v\n", err)
		return exitError
	}
	if !view.Allowed {
		return exitDenied
	}
	return exitAllowed
}

func parseArgs(args []string) (request, error) {
	if len(args) < 2 || len(args) > 3 {
		return request{}, errors.New("expected tenant id, list id and optional timestamp")
	}
	tenant, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || tenant == 0 {
		return request{}, fmt.Errorf("invalid tenant id %q", args[0])
	}
	list, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil || list == 0 {
		return request{}, fmt.Errorf("invalid list id %q", args[1])
	}
	req := request{key: domain.ListKey{TenantID: tenant, ListID: list}}
	if len(args) == 3 {
		req.at, err = time.Parse(time.RFC3339, args[2])
		if err != nil {
			return request{}, fmt.Errorf("invalid timestamp %q: %w", args[2], err)
		}
	}
	return req, nil
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	clk := clock.RealClock{}
	logger := log.GetLogger()

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone: %w", err)
	}

	store, err := bolt.New(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule store: %w", err)
	}

	repo, err := buildRepository(cfg, store, clk)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	rv := validator.New(cfg.Rules.MaxRangeDays)
	ruleService := rules.NewService(rules.ServiceOptions{
		Repo:      repo,
		Validator: rv,
		Clock:     clk,
		Logger:    logger,
	})
	gateService := gate.NewGate(gate.GateOptions{
		Rules:     repo,
		Evaluator: evaluator.New(logger),
		Clock:     clk,
		Location:  loc,
		Logger:    logger,
	})

	return &Application{
		config:    cfg,
		store:     store,
		repo:      repo,
		validator: rv,
		rules:     ruleService,
		gate:      gateService,
	}, nil
}

// buildRepository composes cache, filter and store, then loads the filter.
func buildRepository(cfg *config.AppConfig, store rulebook.Store, clk clock.Clock) (rulebook.Repository, error) {
	opts := rulebook.Options{
		Store:  store,
		Cache:  lru.New(cfg.Cache.Size, cfg.Cache.TTL),
		FPRate: cfg.Filter.FPRate,
		Clock:  clk,
	}
	if cfg.Filter.Enabled {
		opts.Factory = bloom.NewFactory()
	}
	repo := rulebook.NewRepository(opts)
	if err := repo.Rebuild(); err != nil {
		return nil, fmt.Errorf("failed to build rule repository: %w", err)
	}

	stats := repo.RepoStats()
	log.Info(map[string]any{
		"tenants":        stats.Store.Tenants,
		"lists":          stats.Store.Lists,
		"rules":          stats.Store.Rules,
		"filter_entries": stats.FilterEntries,
		"cache_capacity": stats.Cache.Capacity,
	}, "Rule repository initialized")
	return repo, nil
}

// ImportRules loads the configured rule directory and seeds every list that
// has never held a rule. Lists with stored rules are left untouched.
func (app *Application) ImportRules(ctx context.Context) error {
	dir := app.config.Rules.Dir
	if dir == "" {
		return nil
	}
	files, err := rulefile.LoadDirectory(dir, app.validator)
	if err != nil {
		return fmt.Errorf("failed to load rule directory: %w", err)
	}
	imported := 0
	for _, f := range files {
		n, err := app.rules.ImportIfEmpty(ctx, f.Key, f.Specs)
		if err != nil {
			return fmt.Errorf("import %s: %w", f.Path, err)
		}
		imported += n
	}
	log.Info(map[string]any{
		"rules_dir": dir,
		"files":     len(files),
		"imported":  imported,
	}, "Rule files processed")
	return nil
}

// Check evaluates the request and renders the decision.
func (app *Application) Check(ctx context.Context, req request) (wire.DecisionView, error) {
	var (
		d   domain.Decision
		at  time.Time
		err error
	)
	if req.at.IsZero() {
		d, at, err = app.gate.Check(ctx, req.key)
	} else {
		d, at, err = app.gate.CheckAt(ctx, req.key, req.at)
	}
	if err != nil {
		return wire.DecisionView{}, err
	}
	return wire.ToDecisionView(d, at), nil
}

// Close releases the rule store.
func (app *Application) Close() {
	if err := app.store.Close(); err != nil {
		log.Warn(map[string]any{"error": err.Error()}, "Error closing rule store")
	}
}
