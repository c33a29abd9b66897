package observability

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/iamwavecut/chatguard/internal/infra"
)

const TracerName = "github.com/iamwavecut/chatguard"

var (
	verdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_verdicts_total",
			Help: "Detector verdicts other than none",
		},
		[]string{"category", "kind"},
	)

	enforcementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guard_enforcements_total",
			Help: "Moderation actions by outcome",
		},
		[]string{"action", "outcome"},
	)

	messageProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guard_message_processing_duration_seconds",
			Help:    "Time spent processing a single update",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	registerOnce sync.Once
)

// Setup is a lifecycle component that exposes metrics and installs the
// tracer provider.
type Setup struct {
	addr     string
	server   *http.Server
	provider *trace.TracerProvider
	wg       sync.WaitGroup
}

func NewSetup(metricsAddr string) *Setup {
	return &Setup{addr: metricsAddr}
}

func (s *Setup) Start(ctx context.Context) error {
	registerOnce.Do(func() {
		prometheus.MustRegister(verdictsTotal)
		prometheus.MustRegister(enforcementsTotal)
		prometheus.MustRegister(messageProcessingDuration)
	})

	s.provider = trace.NewTracerProvider()
	otel.SetTracerProvider(s.provider)

	if s.addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s.server = &http.Server{Addr: s.addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithField("object", "observability").WithField("error", err.Error()).Error("metrics server failed")
		}
	}()
	return nil
}

func (s *Setup) Stop(ctx context.Context) error {
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
		s.wg.Wait()
	}
	if s.provider != nil {
		err = errors.Join(err, s.provider.Shutdown(ctx))
	}
	return err
}

func RecordVerdict(category, kind string) {
	verdictsTotal.WithLabelValues(category, kind).Inc()
}

func RecordEnforcement(action, outcome string) {
	enforcementsTotal.WithLabelValues(action, outcome).Inc()
}

// StartMessageProcessing returns a function to record message processing duration
func StartMessageProcessing() func(status string) {
	start := time.Now()
	return func(status string) {
		messageProcessingDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
}

// NewAuditLogger builds the JSON journal of moderation actions kept at
// <dir>/audit/moderation.log.
func NewAuditLogger(dir string) (*zap.Logger, error) {
	auditDir, err := infra.GetWorkDir(dir, "audit")
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.Sampling = nil
	cfg.OutputPaths = []string{filepath.Join(auditDir, "moderation.log")}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}
