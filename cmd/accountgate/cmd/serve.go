package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/account-gate/accountgate/internal/config"
	"github.com/account-gate/accountgate/pkg/backend"
	"github.com/account-gate/accountgate/pkg/middleware"
	"github.com/account-gate/accountgate/pkg/policy"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the demo service",
	Long: `Start the demo service protected by the AccountGate validation pipeline.

Routes:
  GET /api/v1/accounts/{accountId}/profile    authenticate() chain
  GET /api/v1/accounts/{accountId}/settings   authorize() chain (session required)
  GET /health                                 unprotected
  GET /metrics                                Prometheus metrics (separate listener)`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.DevMode {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DevMode {
		shutdown, err := setupTelemetry(ctx)
		if err != nil {
			return fmt.Errorf("failed to set up telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown failed", "error", err)
			}
		}()
	}

	// Backend transports.
	httpClient := backend.NewHTTPClient(cfg.Backend.HTTPBaseURL,
		backend.WithHTTPTimeout(cfg.Backend.Timeout),
		backend.WithServiceKey(cfg.Backend.ServiceKey),
		backend.WithHTTPLogger(logger),
	)
	selectorOpts := []backend.SelectorOption{
		backend.WithSelectorLogger(logger),
	}
	var socketClient *backend.SocketClient
	if cfg.Backend.SocketURL != "" {
		socketClient = backend.NewSocketClient(cfg.Backend.SocketURL,
			backend.WithCallTimeout(cfg.Backend.Timeout),
			backend.WithSocketLogger(logger),
		)
		if err := socketClient.Connect(ctx); err != nil {
			// The socket is an optimization; calls fall back to HTTP
			// until its reconnect loop succeeds.
			logger.Warn("initial socket connect failed", "error", err)
		}
		defer socketClient.Close()
		selectorOpts = append(selectorOpts, backend.WithSocket(socketClient))
	}
	// The configured preference is applied last so it wins over the
	// socket-implies-preferred default of WithSocket.
	selectorOpts = append(selectorOpts, backend.WithTransport(backend.Transport(cfg.Backend.Transport)))
	selector := backend.NewSelector(httpClient, selectorOpts...)

	// Metrics registry and pipeline metrics.
	reg := prometheus.NewRegistry()
	metrics := middleware.NewMetrics(reg)

	sdk := middleware.New(selector,
		middleware.WithLogger(logger),
		middleware.WithMetrics(metrics),
		middleware.WithAccountParam(cfg.Auth.AccountParam),
		middleware.WithSessionCookie(cfg.Auth.SessionCookie),
		middleware.WithRefreshRedirectBase(cfg.Auth.RefreshRedirectBase),
	)

	// Optional CEL permission predicate.
	var permissionMw middleware.Middleware
	if cfg.Auth.PermissionExpr != "" {
		evaluator, err := policy.NewEvaluator()
		if err != nil {
			return fmt.Errorf("failed to create policy evaluator: %w", err)
		}
		rule, err := evaluator.Compile(cfg.Auth.PermissionExpr)
		if err != nil {
			return fmt.Errorf("invalid auth.permission_expr: %w", err)
		}
		permissionMw = sdk.RequirePermission(middleware.Permission{
			Validator: rule.Validator(),
		})
	}

	router := chi.NewRouter()
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Route("/api/v1/accounts/{accountId}", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(sdk.Authenticate())
			if permissionMw != nil {
				r.Use(permissionMw)
			}
			r.Get("/profile", handleProfile)
		})
		r.Group(func(r chi.Router) {
			r.Use(sdk.Authorize())
			r.Get("/settings", handleSettings)
		})
	})

	apiSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("api listener starting", "addr", cfg.Server.ListenAddr)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{
			Addr:              cfg.Server.MetricsAddr,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info("metrics listener starting", "addr", cfg.Server.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return apiSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// setupTelemetry installs stdout trace and metric exporters for dev mode.
func setupTelemetry(ctx context.Context) (func(context.Context) error, error) {
	traceExp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp))
	otel.SetTracerProvider(tp)

	metricExp, err := stdoutmetric.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
	)
	otel.SetMeterProvider(mp)

	return func(shutdownCtx context.Context) error {
		terr := tp.Shutdown(shutdownCtx)
		merr := mp.Shutdown(shutdownCtx)
		if terr != nil {
			return terr
		}
		return merr
	}, nil
}

// handleProfile returns the authenticated account record.
func handleProfile(w http.ResponseWriter, r *http.Request) {
	rc := middleware.FromRequest(r)
	writeJSON(w, map[string]any{
		"success": true,
		"data": map[string]any{
			"account": rc.Account,
		},
	})
}

// handleSettings returns the security settings plus the session view that
// the authorize() chain attached.
func handleSettings(w http.ResponseWriter, r *http.Request) {
	rc := middleware.FromRequest(r)
	writeJSON(w, map[string]any{
		"success": true,
		"data": map[string]any{
			"securitySettings": rc.Account.Security,
			"session":          rc.Session,
		},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
