package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	klog "github.com/go-kratos/kratos/v2/log"
	"github.com/sirupsen/logrus"
)

// Log 全局日志实例，未初始化时输出到标准输出
var Log = logrus.New()

// CallerKey 字段存在时代替 logrus 记录的调用位置
const CallerKey = "caller"

// CustomFormatter 自定义日志格式
type CustomFormatter struct{}

// Format 实现 logrus.Formatter 接口
func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var fileLine string
	if c, ok := entry.Data[CallerKey]; ok {
		fileLine = fmt.Sprint(c)
	} else if entry.HasCaller() {
		fileName := filepath.Base(entry.Caller.File)
		fileLine = fmt.Sprintf("%s:%d", fileName, entry.Caller.Line)
	}

	// 对齐级别长度，例如 INFO, WARN, ERRO
	level := strings.ToUpper(entry.Level.String())
	if len(level) > 4 {
		level = level[:4]
	}

	timeStr := entry.Time.Format("2006-01-02 15:04:05")

	// [TIME] [LEVEL] [FILE:LINE] MSG key=value...
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] [%s] [%s] %s", timeStr, level, fileLine, entry.Message)
	for _, k := range sortedKeys(entry.Data) {
		if k == CallerKey {
			continue
		}
		fmt.Fprintf(&sb, " %s=%v", k, entry.Data[k])
	}
	sb.WriteByte('\n')

	return []byte(sb.String()), nil
}

func sortedKeys(data logrus.Fields) []string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// InitLogger 初始化日志
func InitLogger(levelStr string, filePath string) error {
	Log = logrus.New()

	// 开启 ReportCaller 以获取文件名和行号
	Log.SetReportCaller(true)
	Log.SetFormatter(&CustomFormatter{})

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	Log.SetLevel(level)

	// 同时输出到控制台和文件
	writers := []io.Writer{os.Stdout}
	if filePath != "" {
		logDir := filepath.Dir(filePath)
		if logDir != "." {
			if err := os.MkdirAll(logDir, 0o755); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}
		}

		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return err
		}
		writers = append(writers, file)
	}
	Log.SetOutput(io.MultiWriter(writers...))

	return nil
}

// kratosLogger 将 kratos 的 log.Logger 接口转发到当前的全局 logrus 实例
type kratosLogger struct{}

// KratosLogger 返回写入全局 logrus 实例的 kratos Logger，InitLogger 之后同样生效。
// 调用位置取自 kratos 的 caller 字段，未提供时留空。
func KratosLogger() klog.Logger {
	return kratosLogger{}
}

// Log 实现 klog.Logger
func (kratosLogger) Log(level klog.Level, keyvals ...interface{}) error {
	fields := logrus.Fields{}
	msg := ""
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		var val interface{} = "(MISSING)"
		if i+1 < len(keyvals) {
			val = keyvals[i+1]
		}
		if key == klog.DefaultMessageKey {
			msg = fmt.Sprint(val)
			continue
		}
		fields[key] = val
	}
	if _, ok := fields[CallerKey]; !ok {
		fields[CallerKey] = ""
	}

	entry := Log.WithFields(fields)
	switch level {
	case klog.LevelDebug:
		entry.Debug(msg)
	case klog.LevelWarn:
		entry.Warn(msg)
	case klog.LevelError, klog.LevelFatal:
		entry.Error(msg)
	default:
		entry.Info(msg)
	}
	return nil
}
