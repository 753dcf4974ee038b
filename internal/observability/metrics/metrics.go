package metrics

import "github.com/prometheus/client_golang/prometheus"

// MessagingMetrics exposes counters/histograms for the inbound pipeline.
type MessagingMetrics struct {
	inboundTotal    *prometheus.CounterVec
	duplicatesTotal prometheus.Counter
	outboundTotal   *prometheus.CounterVec
	webhookLatency  *prometheus.HistogramVec
	batchSize       prometheus.Histogram
}

func NewMessagingMetrics(reg prometheus.Registerer) *MessagingMetrics {
	m := &MessagingMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gendei",
			Subsystem: "messaging",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound webhook events by type",
		}, []string{"event_type"}),
		duplicatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gendei",
			Subsystem: "messaging",
			Name:      "duplicate_events_total",
			Help:      "Webhook events dropped as already processed",
		}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gendei",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound message sends",
		}, []string{"kind", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gendei",
			Subsystem: "messaging",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gendei",
			Subsystem: "messaging",
			Name:      "buffer_batch_size",
			Help:      "Fragments coalesced per drained batch",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 13},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.duplicatesTotal, m.outboundTotal, m.webhookLatency, m.batchSize)
	return m
}

func (m *MessagingMetrics) ObserveInbound(eventType string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(eventType).Inc()
}

func (m *MessagingMetrics) ObserveDuplicate() {
	if m == nil {
		return
	}
	m.duplicatesTotal.Inc()
}

func (m *MessagingMetrics) ObserveOutbound(kind, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(kind, status).Inc()
}

func (m *MessagingMetrics) ObserveWebhookLatency(eventType string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(eventType).Observe(seconds)
}

func (m *MessagingMetrics) ObserveBatchSize(size int) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(size))
}

// BookingMetrics exposes counters for the slot engine.
type BookingMetrics struct {
	bookingsTotal  *prometheus.CounterVec
	conflictsTotal prometheus.Counter
	holdsExpired   prometheus.Counter
	remindersSent  *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gendei",
			Subsystem: "booking",
			Name:      "bookings_total",
			Help:      "Slot bookings by outcome",
		}, []string{"outcome"}),
		conflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gendei",
			Subsystem: "booking",
			Name:      "conflicts_total",
			Help:      "Booking attempts rejected because the slot was taken",
		}),
		holdsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gendei",
			Subsystem: "booking",
			Name:      "holds_expired_total",
			Help:      "Unpaid holds reclaimed by the expiry sweep",
		}),
		remindersSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gendei",
			Subsystem: "booking",
			Name:      "reminders_sent_total",
			Help:      "Appointment reminders sent by kind",
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.conflictsTotal, m.holdsExpired, m.remindersSent)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.conflictsTotal.Inc()
}

func (m *BookingMetrics) ObserveHoldsExpired(count int) {
	if m == nil {
		return
	}
	m.holdsExpired.Add(float64(count))
}

func (m *BookingMetrics) ObserveReminderSent(kind string) {
	if m == nil {
		return
	}
	m.remindersSent.WithLabelValues(kind).Inc()
}
