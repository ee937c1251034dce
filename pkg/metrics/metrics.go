package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Webhook metrics
var (
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsage_webhooks_total",
			Help: "Total number of inbound webhook events by outcome",
		},
		[]string{"outcome"},
	)

	WebhookDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailsage_webhook_duration_seconds",
			Help:    "End-to-end duration of webhook processing in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	UnauthorizedSendersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailsage_unauthorized_senders_total",
			Help: "Total number of webhook events rejected by the sender allowlist",
		},
	)
)

// Content pipeline metrics
var (
	AttachmentDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsage_attachment_downloads_total",
			Help: "Total number of attachment downloads by result",
		},
		[]string{"result"},
	)

	AttachmentValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsage_attachment_validation_failures_total",
			Help: "Total number of attachment validation failures by reason",
		},
		[]string{"reason"},
	)

	DocumentsRasterizedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsage_documents_rasterized_total",
			Help: "Total number of document rasterization attempts by result",
		},
		[]string{"result"},
	)
)

// Analysis metrics
var (
	AnalysisRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsage_analysis_requests_total",
			Help: "Total number of analysis endpoint calls by result",
		},
		[]string{"result"},
	)

	AnalysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mailsage_analysis_duration_seconds",
			Help:    "Duration of analysis endpoint calls in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	AnalysisTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsage_analysis_tokens_total",
			Help: "Total tokens reported by the analysis endpoint",
		},
		[]string{"kind"},
	)
)

// Delivery metrics
var (
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsage_deliveries_total",
			Help: "Total number of email delivery outcomes",
		},
		[]string{"outcome"},
	)

	DeliveryAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mailsage_delivery_attempts_total",
			Help: "Total number of individual delivery attempts",
		},
	)
)

// Whitelist metrics
var (
	WhitelistReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailsage_whitelist_reloads_total",
			Help: "Total number of allowlist reload attempts by result",
		},
		[]string{"result"},
	)
)
