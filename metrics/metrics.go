// Package metrics holds the Prometheus instruments for the photo backend.
// Defined in a standalone package to avoid import cycles between the
// processing pipeline and the HTTP layer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PhotosProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "photos_processed_total",
		Help: "Processed photos by detection method and validity",
	}, []string{"method", "valid"})

	RateLimitDenials = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limit_denials_total",
		Help: "Requests denied by the rate limiter, by limit type",
	}, []string{"limit_type"})

	OTPSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "otp_emails_sent_total",
		Help: "Verification codes issued and emailed",
	})

	OTPVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "otp_verifications_total",
		Help: "Verification attempts by outcome",
	}, []string{"outcome"})

	DownloadsServed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "downloads_served_total",
		Help: "Photo downloads by kind (watermarked or clean)",
	}, []string{"kind"})
)

// Register registers all instruments on reg, or on the default registerer
// when reg is nil, and returns the handler for the metrics endpoint.
// Double registration is tolerated so tests can call this repeatedly.
func Register(reg prometheus.Registerer) (http.Handler, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		PhotosProcessed,
		RateLimitDenials,
		OTPSent,
		OTPVerifications,
		DownloadsServed,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return promhttp.Handler(), nil
}
