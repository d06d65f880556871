package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observed struct {
	method, route, status string
}

type fakeObserver struct{ calls []observed }

func (f *fakeObserver) ObserveRequest(method, route, status string, _ time.Duration) {
	f.calls = append(f.calls, observed{method, route, status})
}

func newEngine(buf *bytes.Buffer, observer RequestObserver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	engine := gin.New()
	engine.Use(CORS(), Actor(), RequestLogger(logger, observer))
	engine.GET("/records/:kind", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"actor": ActorFrom(c)})
	})
	return engine
}

func TestActorHeader(t *testing.T) {
	var buf bytes.Buffer
	engine := newEngine(&buf, nil)

	req := httptest.NewRequest(http.MethodGet, "/records/batches", nil)
	req.Header.Set(ActorHeader, "  Kai ")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.JSONEq(t, `{"actor":"kai"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/records/batches", nil))
	assert.JSONEq(t, `{"actor":"admin"}`, rec.Body.String())
}

func TestRequestLoggerRecordsRoute(t *testing.T) {
	var buf bytes.Buffer
	observer := &fakeObserver{}
	engine := newEngine(&buf, observer)

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/records/batches", nil))
	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	require.Len(t, observer.calls, 2)
	assert.Equal(t, observed{"GET", "/records/:kind", "200"}, observer.calls[0])
	assert.Equal(t, observed{"GET", "unmatched", "404"}, observer.calls[1])
	assert.Contains(t, buf.String(), `"route":"/records/:kind"`)
	assert.Contains(t, buf.String(), `"level":"WARN"`)
}

func TestCORSPreflight(t *testing.T) {
	var buf bytes.Buffer
	engine := newEngine(&buf, nil)

	req := httptest.NewRequest(http.MethodOptions, "/records/batches", nil)
	req.Header.Set("Origin", "https://nursery.example")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://nursery.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), ActorHeader)
}
