package otel

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"chainsim/config"
)

// collector records the OTLP/HTTP requests it receives.
type collector struct {
	mu      sync.Mutex
	paths   []string
	headers []http.Header
}

func newCollector(t *testing.T) (*collector, string) {
	t.Helper()
	c := &collector{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		c.mu.Lock()
		c.paths = append(c.paths, r.URL.Path)
		c.headers = append(c.headers, r.Header.Clone())
		c.mu.Unlock()
		w.Header().Set("Content-Type", "application/x-protobuf")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return c, srv.Listener.Addr().String()
}

func (c *collector) requests() ([]string, []http.Header) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...), append([]http.Header(nil), c.headers...)
}

func TestNewTracerProviderRecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp, err := NewTracerProvider(context.Background(),
		config.Tracing{ServiceName: "chainsim-test", Environment: "ci", SampleRatio: 1},
		sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	defer tp.Shutdown(context.Background())

	_, span := tp.Tracer(TracerName).Start(context.Background(), "dispatch")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	require.Equal(t, "dispatch", ended[0].Name())

	var service string
	for _, kv := range ended[0].Resource().Attributes() {
		if kv.Key == semconv.ServiceNameKey {
			service = kv.Value.AsString()
		}
	}
	require.Equal(t, "chainsim-test", service)
}

func TestZeroSampleRatioRecordsNothing(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp, err := NewTracerProvider(context.Background(),
		config.Tracing{ServiceName: "chainsim-test", SampleRatio: 0},
		sdktrace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	defer tp.Shutdown(context.Background())

	for i := 0; i < 20; i++ {
		_, span := tp.Tracer(TracerName).Start(context.Background(), "dispatch")
		require.False(t, span.SpanContext().IsSampled())
		span.End()
	}
	require.Empty(t, recorder.Ended())
}

func TestNewTracerProviderRequiresService(t *testing.T) {
	_, err := NewTracerProvider(context.Background(), config.Tracing{ServiceName: " "})
	require.Error(t, err)
	_, err = NewMeterProvider(context.Background(), config.Tracing{})
	require.Error(t, err)
}

func TestTracerProviderExportsToCollector(t *testing.T) {
	c, endpoint := newCollector(t)
	ctx := context.Background()
	tp, err := NewTracerProvider(ctx, config.Tracing{
		ServiceName: "chainsim-test",
		SampleRatio: 1,
		Endpoint:    endpoint,
		Insecure:    true,
		Headers:     map[string]string{"X-Api-Key": "secret"},
	})
	require.NoError(t, err)

	_, span := tp.Tracer(TracerName).Start(ctx, "dispatch")
	span.End()
	require.NoError(t, tp.Shutdown(ctx))

	paths, headers := c.requests()
	require.Contains(t, paths, "/v1/traces")
	require.Equal(t, "secret", headers[0].Get("X-Api-Key"))
}

func TestMeterProviderExportsToCollector(t *testing.T) {
	c, endpoint := newCollector(t)
	ctx := context.Background()
	mp, err := NewMeterProvider(ctx, config.Tracing{
		ServiceName: "chainsim-test",
		Endpoint:    endpoint,
		Insecure:    true,
	})
	require.NoError(t, err)

	counter, err := mp.Meter(MeterName).Int64Counter("chainsim.router.messages")
	require.NoError(t, err)
	counter.Add(ctx, 3)
	require.NoError(t, mp.Shutdown(ctx))

	paths, _ := c.requests()
	require.Contains(t, paths, "/v1/metrics")
}

func TestInitInstallsGlobalProviders(t *testing.T) {
	prevTP, prevMP := otel.GetTracerProvider(), otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	})

	c, endpoint := newCollector(t)
	ctx := context.Background()
	shutdown, err := Init(ctx, config.Tracing{
		Enabled:     true,
		ServiceName: "chainsim-test",
		SampleRatio: 1,
		Endpoint:    endpoint,
		Insecure:    true,
		Metrics:     true,
	})
	require.NoError(t, err)

	_, span := otel.Tracer(TracerName).Start(ctx, "dispatch")
	span.End()
	counter, err := otel.Meter(MeterName).Int64Counter("chainsim.router.messages")
	require.NoError(t, err)
	counter.Add(ctx, 1)
	require.NoError(t, shutdown(ctx))

	paths, _ := c.requests()
	require.Contains(t, paths, "/v1/traces")
	require.Contains(t, paths, "/v1/metrics")
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" authorization = Bearer abc ,x-team=core,,broken,=empty")
	require.Equal(t, map[string]string{
		"authorization": "Bearer abc",
		"x-team":        "core",
	}, headers)
	require.Empty(t, ParseHeaders(""))
}
