package logging

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/signifo/designgen/internal/config"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFormatter(t *testing.T) {
	entry := &log.Entry{
		Logger:  log.New(),
		Time:    time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
		Level:   log.WarnLevel,
		Message: "attempt failed\n",
		Data:    log.Fields{"status": 500, "attempt": 1},
		Caller:  &runtime.Frame{File: "/src/internal/runtime/executor/openrouter_executor.go", Line: 42},
	}
	entry.Logger.SetReportCaller(true)

	out, err := (&LogFormatter{}).Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "[2026-03-01 12:30:00] [warn ] [openrouter_executor.go:42] attempt failed attempt=1 status=500\n", string(out))
}

func TestApplyConfigWritesToFile(t *testing.T) {
	SetupBaseLogger()
	defer func() {
		_ = ApplyConfig(&config.Config{})
	}()

	cfg := config.Default()
	cfg.LoggingToFile = true
	cfg.LogDir = t.TempDir()
	cfg.Debug = true
	require.NoError(t, ApplyConfig(cfg))
	assert.Equal(t, log.DebugLevel, log.GetLevel())

	log.Debug("written to rotated file")
	require.NoError(t, Close())

	data, err := os.ReadFile(filepath.Join(cfg.LogDir, logFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to rotated file")
}

func TestGinLogrusLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	prevOut := log.StandardLogger().Out
	log.SetOutput(&buf)
	defer log.SetOutput(prevOut)

	router := gin.New()
	router.Use(GinLogrusLogger(), GinLogrusRecovery())
	router.GET("/boom", func(c *gin.Context) {
		_ = c.Error(errors.New("upstream exploded"))
		c.Status(http.StatusBadGateway)
	})
	router.GET("/panic", func(*gin.Context) { panic("kaboom") })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom?x=1", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.True(t, strings.Contains(buf.String(), "GET /boom?x=1"))
	assert.True(t, strings.Contains(buf.String(), "upstream exploded"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.Contains(buf.String(), "kaboom"))
}
