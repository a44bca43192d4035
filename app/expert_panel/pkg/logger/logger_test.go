package logger

import (
	"bytes"
	"testing"
	"time"

	klog "github.com/go-kratos/kratos/v2/log"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestCustomFormatter(t *testing.T) {
	entry := &logrus.Entry{
		Time:    time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "persona failed",
		Data:    logrus.Fields{"stage": "insights", "persona": "CFO"},
	}

	out, err := (&CustomFormatter{}).Format(entry)
	assert.NoError(t, err)
	assert.Equal(t, "[2024-05-01 09:30:00] [WARN] [] persona failed persona=CFO stage=insights\n", string(out))
}

func TestKratosLogger(t *testing.T) {
	old := Log
	defer func() { Log = old }()

	var buf bytes.Buffer
	Log = logrus.New()
	Log.SetOutput(&buf)
	Log.SetFormatter(&CustomFormatter{})
	Log.SetReportCaller(true)

	kl := KratosLogger()
	assert.NoError(t, kl.Log(klog.LevelError, klog.DefaultMessageKey, "boom", "path", "/process_problem", CallerKey, "server.go:42"))
	line := buf.String()
	assert.Contains(t, line, "[ERRO] [server.go:42] boom path=/process_problem")
	assert.NotContains(t, line, "logger.go")
	assert.NotContains(t, line, "caller=")

	buf.Reset()
	assert.NoError(t, kl.Log(klog.LevelInfo, klog.DefaultMessageKey, "no caller"))
	assert.Contains(t, buf.String(), "[INFO] [] no caller")
	assert.NotContains(t, buf.String(), "logger.go")
}

func TestKratosLogger_FollowsGlobal(t *testing.T) {
	old := Log
	defer func() { Log = old }()

	kl := KratosLogger()
	var buf bytes.Buffer
	Log = logrus.New()
	Log.SetOutput(&buf)
	Log.SetFormatter(&CustomFormatter{})

	assert.NoError(t, kl.Log(klog.LevelInfo, klog.DefaultMessageKey, "started"))
	assert.Contains(t, buf.String(), "started")
}
