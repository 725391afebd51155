package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/solestore/api/internal/platform/requestctx"
)

func TestParseCloudTraceContext(t *testing.T) {
	sc, ok := parseCloudTraceContext("105445aa7843bc8bf206b12000100000/1;o=1")
	require.True(t, ok)
	assert.Equal(t, "105445aa7843bc8bf206b12000100000", sc.TraceID().String())
	assert.Equal(t, "0000000000000001", sc.SpanID().String())
	assert.True(t, sc.IsSampled())

	for _, header := range []string{"", "nope", "zz/1", "105445aa7843bc8bf206b12000100000/abc"} {
		_, ok := parseCloudTraceContext(header)
		assert.False(t, ok, header)
	}
}

func TestRequestPipelineLogsAndTraces(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	router := chi.NewRouter()
	router.Use(
		TraceMiddleware("proj-1"),
		InjectLoggerMiddleware(zap.New(core)),
		RequestLoggerMiddleware(),
		RecoveryMiddleware(nil),
	)
	var traceID string
	router.Get("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		traceID = requestctx.TraceID(r.Context())
		w.WriteHeader(http.StatusNotFound)
	})
	router.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", traceID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	completed := logs.FilterMessage("request completed").All()
	require.Len(t, completed, 2)
	assert.Equal(t, zapcore.WarnLevel, completed[0].Level)
	assert.Equal(t, "/orders/{id}", completed[0].ContextMap()["route"])
	assert.Equal(t, "projects/proj-1/traces/4bf92f3577b34da6a3ce929d0e0e4736", completed[0].ContextMap()["logging.googleapis.com/trace"])
	assert.Equal(t, zapcore.ErrorLevel, completed[1].Level)
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}
