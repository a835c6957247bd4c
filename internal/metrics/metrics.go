// Package metrics — Prometheus-метрики цикла ФАПЧ.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	packets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tdcsync",
			Subsystem: "link",
			Name:      "packets_total",
			Help:      "Decoded packets by stream id.",
		},
		[]string{"stream"},
	)
	emptyFrames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tdcsync",
			Subsystem: "link",
			Name:      "empty_frames_total",
			Help:      "Empty (keepalive) frames.",
		},
	)
	badPayloads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tdcsync",
			Subsystem: "tdc",
			Name:      "bad_payloads_total",
			Help:      "TDC payloads that failed to parse or validate.",
		},
	)
	samples = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tdcsync",
			Subsystem: "dpll",
			Name:      "samples_total",
			Help:      "Loop cycles by observation validity.",
		},
		[]string{"valid"},
	)
	relError = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tdcsync",
		Subsystem: "dpll",
		Name:      "phase_error_ratio",
		Help:      "Filtered phase error as a fraction of the gate period.",
	})
	tuneCode = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tdcsync",
		Subsystem: "dpll",
		Name:      "tune_code",
		Help:      "Last tuning register code.",
	})
	dividerMode = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tdcsync",
		Subsystem: "dpll",
		Name:      "divider_mode",
		Help:      "Gate divider mode: 0 normal, 1 faster, 2 slower.",
	})
	locked = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tdcsync",
		Subsystem: "dpll",
		Name:      "locked",
		Help:      "1 when the loop is locked.",
	})
	drift = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "tdcsync",
		Subsystem: "dpll",
		Name:      "drift_ratio",
		Help:      "Fractional frequency offset estimated from the phase trend.",
	})
)

// Register регистрирует метрики в реестре по умолчанию; повторные вызовы безопасны.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(packets, emptyFrames, badPayloads, samples,
			relError, tuneCode, dividerMode, locked, drift)
	})
}

// Packet учитывает пакет потока id.
func Packet(id uint8) {
	packets.WithLabelValues(strconv.Itoa(int(id))).Inc()
}

// Frame учитывает кадр длины n; пустые — отдельно.
func Frame(n int) {
	if n == 0 {
		emptyFrames.Inc()
	}
}

// BadPayload учитывает отброшенный payload телеметрии.
func BadPayload() {
	badPayloads.Inc()
}

// Loop — снимок состояния петли за такт.
type Loop struct {
	Valid    bool
	RelError float64
	Code     uint32
	Mode     int
	Locked   bool
	Drift    float64
}

// Observe обновляет метрики петли.
func Observe(s Loop) {
	samples.WithLabelValues(strconv.FormatBool(s.Valid)).Inc()
	relError.Set(s.RelError)
	tuneCode.Set(float64(s.Code))
	dividerMode.Set(float64(s.Mode))
	if s.Locked {
		locked.Set(1)
	} else {
		locked.Set(0)
	}
	drift.Set(s.Drift)
}

// Serve отдаёт /metrics на addr до отмены ctx.
func Serve(ctx context.Context, addr string) error {
	Register()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
