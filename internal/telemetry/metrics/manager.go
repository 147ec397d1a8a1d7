package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Manager struct {
	// counters
	CounterRequests              *prometheus.CounterVec
	CounterHandleRequestPanic    prometheus.Counter
	CounterRateLimitedRequests   prometheus.Counter
	CounterFrames                *prometheus.CounterVec
	CounterReps                  *prometheus.CounterVec
	CounterFormErrors            *prometheus.CounterVec
	CounterNotificationsEmitted  prometheus.Counter
	CounterNotificationsDropped  prometheus.Counter
	CounterFeedbackSinkFailures  *prometheus.CounterVec
	CounterFeedbackQueueOverflow prometheus.Counter

	// gauges
	GaugeRequests       prometheus.Gauge
	GaugeLifeSignal     prometheus.Gauge
	GaugeActiveSessions prometheus.Gauge

	// histograms
	HistogramRequestDuration *prometheus.HistogramVec
	HistFrameProcessing      prometheus.Histogram
}

func NewTestManager() *Manager {
	return NewManager("formcoach", "test_server", prometheus.NewRegistry())
}

func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager("formcoach", "test_server", reg), reg
}

func NewManager(namespace, subsystem string, reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	counterRequests := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request",
		Help:      "The total number of incoming requests",
	}, []string{"method", "status"})
	counterHandleRequestPanic := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "handle_request_panic",
		Help:      "The total number of serve request panics",
	})
	counterRateLimitedRequests := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "rate_limited_requests",
		Help:      "The total number of rate limited requests",
	})
	counterFrames := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "frames",
		Help:      "The total number of processed pose frames",
	}, []string{"exercise", "outcome"})
	counterReps := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "half_reps",
		Help:      "The total number of credited half repetitions",
	}, []string{"exercise"})
	counterFormErrors := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "form_errors",
		Help:      "Number of form error appearances",
	}, []string{"exercise", "code"})
	counterNotificationsEmitted := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "notifications_emitted",
		Help:      "The total number of feedback notifications emitted",
	})
	counterNotificationsDropped := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "notifications_dropped",
		Help:      "Feedback notifications dropped by a full pending queue",
	})
	counterFeedbackSinkFailures := factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "feedback_sink_failures",
		Help:      "Feedback deliveries that failed, per sink",
	}, []string{"sink"})
	counterFeedbackQueueOverflow := factory.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "feedback_queue_overflow",
		Help:      "Notifications not handed to the delivery worker",
	})

	gaugeRequests := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "current_requests",
		Help:      "Current number of requests served",
	})
	gaugeLifeSignal := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "life_signal",
		Help:      "Shows whether the service is alive",
	})
	gaugeActiveSessions := factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "active_sessions",
		Help:      "Current number of live exercise sessions",
	})

	histogramRequestDuration := factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_duration_seconds",
		Help:      "Histogram of response time for requests in seconds",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"route", "method", "status_code"})
	histFrameProcessing := factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "frame_processing_seconds",
		Help:      "Time spent running a single frame through a session",
		Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .033},
	})

	return &Manager{
		CounterRequests:              counterRequests,
		CounterHandleRequestPanic:    counterHandleRequestPanic,
		CounterRateLimitedRequests:   counterRateLimitedRequests,
		CounterFrames:                counterFrames,
		CounterReps:                  counterReps,
		CounterFormErrors:            counterFormErrors,
		CounterNotificationsEmitted:  counterNotificationsEmitted,
		CounterNotificationsDropped:  counterNotificationsDropped,
		CounterFeedbackSinkFailures:  counterFeedbackSinkFailures,
		CounterFeedbackQueueOverflow: counterFeedbackQueueOverflow,
		GaugeRequests:                gaugeRequests,
		GaugeLifeSignal:              gaugeLifeSignal,
		GaugeActiveSessions:          gaugeActiveSessions,
		HistogramRequestDuration:     histogramRequestDuration,
		HistFrameProcessing:          histFrameProcessing,
	}
}
