// Package metrics define los collectors Prometheus del cliente.
// Todos los métodos de *Metrics aceptan receiver nil (no-op), así los
// componentes pueden recibir métricas opcionales sin chequear.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sentinel"

type Metrics struct {
	resolutions        *prometheus.CounterVec
	staleResolutions   prometheus.Counter
	captureErrors      *prometheus.CounterVec
	enrollmentOutcomes *prometheus.CounterVec
	enrollmentDuration prometheus.Histogram
	simulatorRuns      *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInflight        *prometheus.GaugeVec

	gatherer prometheus.Gatherer
}

// New crea y registra los collectors. reg nil => registry default.
// Registrar dos veces sobre el mismo registry no falla.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_resolutions_total",
			Help:      "Resoluciones de perfil por clasificación",
		}, []string{"classification"}),
		staleResolutions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_stale_resolutions_total",
			Help:      "Resultados de resolución descartados por token viejo",
		}),
		captureErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_errors_total",
			Help:      "Errores de cámara por motivo",
		}, []string{"reason"}),
		enrollmentOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrollment_outcomes_total",
			Help:      "Resultados de enrollment por etapa final",
		}, []string{"stage", "result"}), // result: done|failed
		enrollmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "enrollment_duration_seconds",
			Help:      "Duración de una submission de enrollment",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		simulatorRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "simulator_runs_total",
			Help:      "Pasadas del simulador de verificación por resultado",
		}, []string{"result"}), // completed|cancelled
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Número total de requests procesadas",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latencia de los requests HTTP",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		httpInflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Requests en vuelo por método",
		}, []string{"method"}),
	}

	var err error
	if m.resolutions, err = register(reg, m.resolutions); err != nil {
		return nil, err
	}
	if m.staleResolutions, err = register(reg, m.staleResolutions); err != nil {
		return nil, err
	}
	if m.captureErrors, err = register(reg, m.captureErrors); err != nil {
		return nil, err
	}
	if m.enrollmentOutcomes, err = register(reg, m.enrollmentOutcomes); err != nil {
		return nil, err
	}
	if m.enrollmentDuration, err = register(reg, m.enrollmentDuration); err != nil {
		return nil, err
	}
	if m.simulatorRuns, err = register(reg, m.simulatorRuns); err != nil {
		return nil, err
	}
	if m.httpRequestsTotal, err = register(reg, m.httpRequestsTotal); err != nil {
		return nil, err
	}
	if m.httpRequestDuration, err = register(reg, m.httpRequestDuration); err != nil {
		return nil, err
	}
	if m.httpInflight, err = register(reg, m.httpInflight); err != nil {
		return nil, err
	}

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m, nil
}

// register registra c; si ya había uno equivalente retorna el existente
// para que ambas instancias de Metrics escriban sobre el mismo collector.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			return c, nil
		}
		return c, err
	}
	return c, nil
}

// Handler expone /metrics para el registry usado en New.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveResolution(classification string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(classification).Inc()
}

func (m *Metrics) StaleResolution() {
	if m == nil {
		return
	}
	m.staleResolutions.Inc()
}

func (m *Metrics) CaptureError(reason string) {
	if m == nil {
		return
	}
	m.captureErrors.WithLabelValues(reason).Inc()
}

// EnrollmentOutcome registra el fin de una submission. stage es la etapa en
// la que terminó (Done o la que falló).
func (m *Metrics) EnrollmentOutcome(stage string, ok bool, took time.Duration) {
	if m == nil {
		return
	}
	result := "failed"
	if ok {
		result = "done"
	}
	m.enrollmentOutcomes.WithLabelValues(stage, result).Inc()
	m.enrollmentDuration.Observe(took.Seconds())
}

func (m *Metrics) SimulatorRun(completed bool) {
	if m == nil {
		return
	}
	if completed {
		m.simulatorRuns.WithLabelValues("completed").Inc()
		return
	}
	m.simulatorRuns.WithLabelValues("cancelled").Inc()
}

// HTTPStart marca un request en vuelo y retorna la función que lo cierra.
// El path se conoce recién después del ruteo, por eso lo recibe done.
func (m *Metrics) HTTPStart(method string) (done func(path string, status int)) {
	if m == nil {
		return func(string, int) {}
	}
	start := time.Now()
	m.httpInflight.WithLabelValues(method).Inc()
	return func(path string, status int) {
		m.httpInflight.WithLabelValues(method).Dec()
		m.httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	}
}
