package setup

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/itchan-dev/starter/frontend/internal/apiclient"
	"github.com/itchan-dev/starter/frontend/internal/dialog"
	"github.com/itchan-dev/starter/frontend/internal/effects"
	"github.com/itchan-dev/starter/frontend/internal/fetcher"
	"github.com/itchan-dev/starter/frontend/internal/handler"
	"github.com/itchan-dev/starter/frontend/internal/middleware"
	"github.com/itchan-dev/starter/frontend/internal/mockwatch"
	"github.com/itchan-dev/starter/frontend/internal/query"
	"github.com/itchan-dev/starter/frontend/internal/transport"
	"github.com/itchan-dev/starter/shared/config"
	"github.com/itchan-dev/starter/shared/jwt"
	"github.com/itchan-dev/starter/shared/logger"
	mw "github.com/itchan-dev/starter/shared/middleware"
	"github.com/itchan-dev/starter/shared/middleware/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"
)

const (
	cachePruneInterval = time.Minute
	cacheMaxIdle       = 30 * time.Minute
	loginRateLimit     = rate.Limit(1) // per second and IP
	loginBurst         = 5
)

type Dependencies struct {
	Public       config.Public
	Handler      *handler.Handler
	Auth         *middleware.Auth
	Binder       *middleware.Binder
	Metrics      *metrics.HTTP
	Registry     *prometheus.Registry
	LoginLimiter *mw.KeyedLimiter
	Cache        *query.Client
	Watcher      *mockwatch.Watcher // nil unless fixtures are watched
	CancelFunc   context.CancelFunc
}

// Transport builds the backend client from cfg. The token source is bound
// per request.
func Transport(cfg *config.Config) (*transport.Client, error) {
	policy, err := transport.ParseTokenPolicy(cfg.Public.API.TokenPolicy)
	if err != nil {
		return nil, err
	}
	opts := []transport.Option{
		transport.WithTimeout(cfg.Public.API.Timeout),
		transport.WithTokenPolicy(policy),
	}
	if cfg.IsDevelopment() {
		opts = append(opts, transport.WithFixtures(os.DirFS(cfg.Public.Mock.Root)))
	}
	if cfg.Public.API.RateLimit > 0 {
		opts = append(opts, transport.WithRateLimit(rate.Limit(cfg.Public.API.RateLimit), cfg.Public.API.Burst))
	}
	return transport.New(cfg.Public.API.BaseURL, opts...)
}

// FetcherOptions are the options every Fetcher built from cfg shares.
func FetcherOptions(cfg *config.Config) []fetcher.Option {
	return []fetcher.Option{
		fetcher.WithMode(cfg.Public.Env),
		fetcher.WithLoginPath(cfg.Public.Frontend.LoginPath),
		fetcher.WithMockDelay(cfg.Public.Mock.Delay),
		fetcher.WithFallback(fetcher.Fallback{
			Title:   cfg.Public.Errors.FallbackTitle,
			Message: cfg.Public.Errors.FallbackMessage,
		}),
	}
}

func SetupDependencies(cfg *config.Config) (*Dependencies, error) {
	// Create cancellable context for background tasks
	ctx, cancel := context.WithCancel(context.Background())

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	tr, err := Transport(cfg)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	dialogs := dialog.NewRegistry()
	dialogs.Register(dialog.ErrorDialogKey, effects.Render)

	opts := append(FetcherOptions(cfg),
		fetcher.WithPresenter(dialogs),
		fetcher.WithMetrics(fetcher.NewMetrics(registry)),
	)
	f := fetcher.New(tr, opts...)

	cache := query.NewClient(
		query.WithStaleTime(cfg.Public.Query.StaleTime),
		query.WithRetry(cfg.Public.Query.Retry),
		query.WithMetrics(query.NewMetrics(registry)),
	)
	cache.StartPruning(ctx, cachePruneInterval, cacheMaxIdle)

	var watcher *mockwatch.Watcher
	if cfg.IsDevelopment() && cfg.Public.Mock.Watch {
		watcher, err = mockwatch.New(cfg.Public.Mock.Root, cache)
		if err == nil {
			err = watcher.Start(ctx)
		}
		if err != nil {
			// Hot reload is a convenience; serve fixtures without it.
			logger.Log.Warn("fixture watcher disabled", "root", cfg.Public.Mock.Root, "error", err)
			if watcher != nil {
				watcher.Stop()
			}
			watcher = nil
		}
	}

	templates, err := handler.LoadTemplates(handler.TemplateFS)
	if err != nil {
		cancel()
		cache.Close()
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	loginLimiter := mw.NewKeyedLimiter(loginRateLimit, loginBurst)
	loginLimiter.StartCleanup(ctx, time.Minute, time.Hour)

	inspector := jwt.New(cfg.JwtKey())
	apiClient := apiclient.New(f, cache)

	return &Dependencies{
		Public:       cfg.Public,
		Handler:      handler.New(templates, cfg.Public, apiClient),
		Auth:         middleware.NewAuth(inspector, cfg.Public.Frontend.LoginPath, cfg.Public.Frontend.SecureCookies),
		Binder:       middleware.NewBinder(f, tr),
		Metrics:      metrics.New(registry),
		Registry:     registry,
		LoginLimiter: loginLimiter,
		Cache:        cache,
		Watcher:      watcher,
		CancelFunc:   cancel,
	}, nil
}

// Cleanup stops background work: pruning, the fixture watcher and pending
// cache refreshes.
func (d *Dependencies) Cleanup() {
	d.CancelFunc()
	if d.Watcher != nil {
		d.Watcher.Stop()
	}
	d.Cache.Close()
}
