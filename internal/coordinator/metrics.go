package coordinator

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts refresh cycles. Pass it in Options; nil disables it.
type Metrics struct {
	cycles   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics creates unregistered refresh metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aircloud_refresh_cycles_total",
			Help: "Refresh cycles by trigger and outcome",
		}, []string{"trigger", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aircloud_refresh_duration_seconds",
			Help:    "Duration of refresh cycles against the AirCloud API",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"outcome"}),
	}
}

// Register adds the metrics to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if err := reg.Register(m.cycles); err != nil {
		return err
	}
	return reg.Register(m.duration)
}

func (m *Metrics) observe(r Result) {
	outcome := string(r.Outcome)
	m.cycles.WithLabelValues(r.Trigger, outcome).Inc()
	if !r.Finished.IsZero() && !r.Started.IsZero() {
		m.duration.WithLabelValues(outcome).Observe(r.Finished.Sub(r.Started).Seconds())
	}
}

// MetricsCollector exports the current snapshot and status as gauges at
// scrape time.
type MetricsCollector struct {
	res Resource

	devices       prometheus.Gauge
	success       prometheus.Gauge
	lastSuccess   prometheus.Gauge
	interval      prometheus.Gauge
	reauth        prometheus.Gauge
	online        *prometheus.GaugeVec
	available     *prometheus.GaugeVec
	power         *prometheus.GaugeVec
	mode          *prometheus.GaugeVec
	targetTemp    *prometheus.GaugeVec
	roomTemp      *prometheus.GaugeVec
	humidityPoint *prometheus.GaugeVec
}

// NewMetricsCollector creates a collector over res.
func NewMetricsCollector(res Resource) *MetricsCollector {
	labels := []string{"device_id", "device_name"}
	return &MetricsCollector{
		res: res,
		devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aircloud_devices",
			Help: "Number of devices in the current snapshot",
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aircloud_last_update_success",
			Help: "Last refresh outcome (1=ok, 0=error)",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aircloud_last_success_timestamp_seconds",
			Help: "Unix time of the last successful refresh",
		}),
		interval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aircloud_update_interval_seconds",
			Help: "Configured periodic refresh interval",
		}),
		reauth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aircloud_reauth_required",
			Help: "Whether the account credentials were rejected (1=rejected)",
		}),
		online: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aircloud_device_online",
			Help: "Whether the unit reports cloud connectivity (1=up, 0=down)",
		}, labels),
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aircloud_device_available",
			Help: "Whether the unit is online and its last command succeeded",
		}, labels),
		power: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aircloud_device_on",
			Help: "Power state (1=on, 0=off)",
		}, labels),
		mode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aircloud_device_mode",
			Help: "Operating mode (1=active)",
		}, append(labels, "mode")),
		targetTemp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aircloud_device_target_temperature_celsius",
			Help: "Target temperature (celsius)",
		}, labels),
		roomTemp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aircloud_device_room_temperature_celsius",
			Help: "Reported room temperature (celsius)",
		}, labels),
		humidityPoint: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aircloud_device_target_humidity_percent",
			Help: "Target humidity (%)",
		}, labels),
	}
}

func (c *MetricsCollector) vecs() []*prometheus.GaugeVec {
	return []*prometheus.GaugeVec{c.online, c.available, c.power, c.mode, c.targetTemp, c.roomTemp, c.humidityPoint}
}

func (c *MetricsCollector) gauges() []prometheus.Gauge {
	return []prometheus.Gauge{c.devices, c.success, c.lastSuccess, c.interval, c.reauth}
}

// Describe implements prometheus.Collector.
func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range c.gauges() {
		g.Describe(ch)
	}
	for _, v := range c.vecs() {
		v.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.res.Snapshot()
	status := c.res.Status()

	c.devices.Set(float64(len(snap.Devices)))
	c.success.Set(boolToFloat(status.LastUpdateSuccess))
	if !status.LastSuccess.IsZero() {
		c.lastSuccess.Set(float64(status.LastSuccess.Unix()))
	}
	c.interval.Set(status.Interval.Seconds())
	c.reauth.Set(boolToFloat(status.ReauthRequired))

	for _, v := range c.vecs() {
		v.Reset()
	}

	for _, d := range snap.Devices {
		labels := prometheus.Labels{
			"device_id":   strconv.FormatInt(d.ID, 10),
			"device_name": d.Name,
		}
		c.online.With(labels).Set(boolToFloat(d.Online))
		c.available.With(labels).Set(boolToFloat(snap.Available(d.ID)))
		c.power.With(labels).Set(boolToFloat(d.On))
		c.mode.With(prometheus.Labels{
			"device_id":   labels["device_id"],
			"device_name": d.Name,
			"mode":        string(d.HVACMode()),
		}).Set(1)
		c.targetTemp.With(labels).Set(d.TargetTemperature)
		if d.CurrentTemperature != nil {
			c.roomTemp.With(labels).Set(*d.CurrentTemperature)
		}
		if d.TargetHumidity != nil {
			c.humidityPoint.With(labels).Set(float64(*d.TargetHumidity))
		}
	}

	for _, g := range c.gauges() {
		g.Collect(ch)
	}
	for _, v := range c.vecs() {
		v.Collect(ch)
	}
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
