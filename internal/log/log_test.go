package log

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dhis2-sre/im-activities/internal/middleware"
	"github.com/dhis2-sre/im-activities/pkg/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogs(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var b bytes.Buffer
	logger := slog.New(New(slog.NewJSONHandler(&b, nil)))

	r := gin.New()
	r.Use(middleware.CorrelationID())
	r.Use(middleware.RequestLogger(logger))
	r.Use(func(c *gin.Context) {
		ctx := model.NewContextWithUser(c.Request.Context(), &model.User{ID: "bob", DisplayName: "Bob"})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	var correlationID string
	r.GET("/activities/:id", func(c *gin.Context) {
		correlationID, _ = middleware.GetCorrelationID(c.Request.Context())
		// middleware.RequestLogger() and our call to InfoContext should both add the correlation id
		// and the user id
		logger.InfoContext(c.Request.Context(), "info")
		c.String(http.StatusOK, "success")
	})

	w := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, "/activities/1", nil)
	require.NoError(t, err)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, correlationID)
	assert.Equal(t, correlationID, w.Header().Get(middleware.CorrelationIDHeader))

	lines := 0
	sc := bufio.NewScanner(&b)
	for sc.Scan() {
		lines++
		got := make(map[string]any)
		require.NoError(t, json.Unmarshal(sc.Bytes(), &got))

		assert.Equal(t, correlationID, got[middleware.RequestLoggerKeyCorrelationID], "want log line to have the correlation id")
		assert.Equal(t, "bob", got[middleware.RequestLoggerKeyUser], "want log line to have the user id")
	}
	assert.Equal(t, 2, lines)
}

func TestLogsWithoutContextValues(t *testing.T) {
	var b bytes.Buffer
	logger := slog.New(New(slog.NewJSONHandler(&b, nil)))

	logger.Info("startup")

	got := make(map[string]any)
	require.NoError(t, json.Unmarshal(b.Bytes(), &got))
	assert.NotContains(t, got, middleware.RequestLoggerKeyCorrelationID)
	assert.NotContains(t, got, middleware.RequestLoggerKeyUser)
}

func TestNewJSONHandler(t *testing.T) {
	t.Run("Pretty", func(t *testing.T) {
		var b bytes.Buffer
		logger := slog.New(NewJSONHandler(&b, slog.LevelInfo, true)).With("component", "hub")

		logger.Info("first")
		logger.Debug("dropped")
		logger.Info("second")

		out := b.String()
		assert.Equal(t, 2, strings.Count(out, `"msg"`))
		assert.Contains(t, out, "\n  \"component\": \"hub\"")

		dec := json.NewDecoder(&b)
		for _, msg := range []string{"first", "second"} {
			got := make(map[string]any)
			require.NoError(t, dec.Decode(&got))
			assert.Equal(t, msg, got["msg"])
		}
	})

	t.Run("Compact", func(t *testing.T) {
		var b bytes.Buffer
		logger := slog.New(NewJSONHandler(&b, slog.LevelDebug, false))

		logger.Debug("kept")

		assert.Equal(t, 1, strings.Count(b.String(), "\n"))
		assert.Contains(t, b.String(), `"msg":"kept"`)
	})
}
