package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline stage names used as metric labels.
const (
	stageSessionParam = "authenticate_session"
	stageAccount      = "validate_account"
	stageToken        = "validate_token"
	stageSession      = "load_session"
	stagePermission   = "require_permission"
)

// Outcome labels.
const (
	outcomePass     = "pass"
	outcomeFail     = "fail"
	outcomeRedirect = "redirect"
)

// Metrics holds the Prometheus metrics recorded by the pipeline.
// Pass to the SDK via WithMetrics.
type Metrics struct {
	StageOutcomes  *prometheus.CounterVec
	RedirectsTotal prometheus.Counter
	BackendErrors  *prometheus.CounterVec
}

// NewMetrics creates and registers all pipeline metrics with the given
// registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		StageOutcomes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "accountgate",
				Name:      "stage_outcomes_total",
				Help:      "Validation pipeline outcomes per stage",
			},
			[]string{"stage", "outcome"},
		),
		RedirectsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "accountgate",
				Name:      "refresh_redirects_total",
				Help:      "Token-refresh redirects issued",
			},
		),
		BackendErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "accountgate",
				Name:      "backend_errors_total",
				Help:      "Backend call failures observed by the pipeline",
			},
			[]string{"code"},
		),
	}
}

// observe records a stage outcome when metrics are configured.
func (s *SDK) observe(stage, outcome string) {
	if s.metrics != nil {
		s.metrics.StageOutcomes.WithLabelValues(stage, outcome).Inc()
	}
}

// observeBackendError records a backend failure code when metrics are
// configured.
func (s *SDK) observeBackendError(code string) {
	if s.metrics != nil {
		s.metrics.BackendErrors.WithLabelValues(code).Inc()
	}
}

// observeRedirect counts an issued refresh redirect.
func (s *SDK) observeRedirect() {
	if s.metrics != nil {
		s.metrics.RedirectsTotal.Inc()
	}
}
