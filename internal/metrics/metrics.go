// Package metrics holds the Prometheus collectors of the daemon. Every method
// is safe to call on a nil *Metrics so components can run without metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all collectors.
type Metrics struct {
	// Front end
	requestsTotal     *prometheus.CounterVec // by handler and status code
	activeConnections prometheus.Gauge
	rejectedTotal     prometheus.Counter // connections refused by the allow-list

	// Tuner
	tunerOpsTotal *prometheus.CounterVec // by op and result
	frequencyMHz  prometheus.Gauge

	// Workers
	rdsGroupsTotal   prometheus.Counter
	rdsTimeouts      prometheus.Counter
	rdsStationChange prometheus.Counter
	audioFramesTotal *prometheus.CounterVec // by stream
	audioXrunsTotal  *prometheus.CounterVec // by stream
	workerRunning    *prometheus.GaugeVec   // by worker

	// Publisher
	publishTotal *prometheus.CounterVec // by result
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fmradiod_requests_total",
				Help: "Requests served by the front end, by handler and status code",
			},
			[]string{"handler", "code"},
		),
		activeConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "fmradiod_active_connections",
				Help: "Connections currently being served",
			},
		),
		rejectedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "fmradiod_rejected_connections_total",
				Help: "Connections refused by the address allow-list",
			},
		),
		tunerOpsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fmradiod_tuner_operations_total",
				Help: "Tuner operations, by operation and result",
			},
			[]string{"op", "result"},
		),
		frequencyMHz: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "fmradiod_frequency_mhz",
				Help: "Currently tuned frequency in MHz",
			},
		),
		rdsGroupsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "fmradiod_rds_groups_total",
				Help: "RDS groups decoded",
			},
		),
		rdsTimeouts: f.NewCounter(
			prometheus.CounterOpts{
				Name: "fmradiod_rds_timeouts_total",
				Help: "RDS polls that timed out waiting for a group",
			},
		),
		rdsStationChange: f.NewCounter(
			prometheus.CounterOpts{
				Name: "fmradiod_rds_station_changes_total",
				Help: "Accepted callsign changes after debounce",
			},
		),
		audioFramesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fmradiod_audio_frames_total",
				Help: "Audio frames moved, by stream",
			},
			[]string{"stream"},
		),
		audioXrunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fmradiod_audio_xruns_total",
				Help: "Recovered audio overruns and underruns, by stream",
			},
			[]string{"stream"},
		),
		workerRunning: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fmradiod_worker_running",
				Help: "1 while a background worker is running",
			},
			[]string{"worker"},
		),
		publishTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fmradiod_mqtt_publish_total",
				Help: "MQTT status publications, by result",
			},
			[]string{"result"},
		),
	}
}

// RecordRequest counts one served request.
func (m *Metrics) RecordRequest(handler string, code int) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(handler, strconv.Itoa(code)).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.activeConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.activeConnections.Dec()
}

func (m *Metrics) RecordRejected() {
	if m == nil {
		return
	}
	m.rejectedTotal.Inc()
}

// RecordTunerOp counts a tuner operation; a nil err is a success.
func (m *Metrics) RecordTunerOp(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.tunerOpsTotal.WithLabelValues(op, result).Inc()
}

// SetFrequency records the tuned channel, given in 10 kHz units.
func (m *Metrics) SetFrequency(ch int) {
	if m == nil {
		return
	}
	m.frequencyMHz.Set(float64(ch) / 100)
}

func (m *Metrics) RecordRDSGroup() {
	if m == nil {
		return
	}
	m.rdsGroupsTotal.Inc()
}

func (m *Metrics) RecordRDSTimeout() {
	if m == nil {
		return
	}
	m.rdsTimeouts.Inc()
}

func (m *Metrics) RecordStationChange() {
	if m == nil {
		return
	}
	m.rdsStationChange.Inc()
}

func (m *Metrics) RecordAudioFrames(stream string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.audioFramesTotal.WithLabelValues(stream).Add(float64(n))
}

func (m *Metrics) RecordXrun(stream string) {
	if m == nil {
		return
	}
	m.audioXrunsTotal.WithLabelValues(stream).Inc()
}

// SetWorkerRunning flips the running gauge of a worker.
func (m *Metrics) SetWorkerRunning(worker string, running bool) {
	if m == nil {
		return
	}
	v := 0.0
	if running {
		v = 1
	}
	m.workerRunning.WithLabelValues(worker).Set(v)
}

func (m *Metrics) RecordPublish(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.publishTotal.WithLabelValues(result).Inc()
}
