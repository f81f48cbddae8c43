package httpmiddleware

import (
	"net/http"
	"time"

	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument returns a middleware that traces requests via otelhttp and
// records a request counter and duration histogram tagged by method and
// status code.
func Instrument(serviceName string, m *app.Telemetry) Middleware {
	meter := m.MeterProvider().Meter(serviceName)

	requests, _ := meter.Int64Counter("http.server.request.count",
		metric.WithDescription("Number of HTTP requests"),
	)
	duration, _ := meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
	)

	return func(next http.Handler) http.Handler {
		measured := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			attrs := metric.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.Int("http.response.status_code", rec.status),
			)
			requests.Add(r.Context(), 1, attrs)
			duration.Record(r.Context(), time.Since(start).Seconds(), attrs)
		})

		return otelhttp.NewHandler(measured, serviceName,
			otelhttp.WithTracerProvider(m.TracerProvider()),
			otelhttp.WithMeterProvider(m.MeterProvider()),
		)
	}
}
