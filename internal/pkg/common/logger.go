package common

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger 全局日誌實例
	Logger  = zap.NewNop()
	LogMode string

	levelColors = map[zapcore.Level]string{
		zapcore.DebugLevel: "\033[36m",
		zapcore.InfoLevel:  "\033[32m",
		zapcore.WarnLevel:  "\033[33m",
		zapcore.ErrorLevel: "\033[31m",
		zapcore.FatalLevel: "\033[35m",
	}
	resetColor = "\033[0m"

	// 不可寫入日誌的敏感欄位，以完整鍵名比對
	sensitiveKeys = map[string]struct{}{
		"password":   {},
		"username":   {},
		"cookie":     {},
		"html":       {},
		"credential": {},
	}
)

func getEncoderConfig(color bool) zapcore.EncoderConfig {
	levelEncoder := zapcore.CapitalLevelEncoder
	if color {
		levelEncoder = customLevelEncoder
	}
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    levelEncoder,
		EncodeTime:     customTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}

func customTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("15:04:05.000"))
}

// 自定義級別編碼器（添加顏色）
func customLevelEncoder(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	level := l.CapitalString()
	switch l {
	case zapcore.DebugLevel:
		level = "DBG"
	case zapcore.InfoLevel:
		level = "INF"
	case zapcore.WarnLevel:
		level = "WRN"
	case zapcore.ErrorLevel:
		level = "ERR"
	case zapcore.FatalLevel:
		level = "FAT"
	}
	enc.AppendString(levelColors[l] + level + resetColor)
}

// ParseLevel 將字串轉為 zap 級別，未知值回傳 info
func ParseLevel(logLevel string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitLogger 初始化日誌系統
func InitLogger(logLevel string) error {
	level := ParseLevel(logLevel)
	LogMode = os.Getenv("LOG_MODE")

	if err := os.MkdirAll("logs", 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.OpenFile("logs/importer.log", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(getEncoderConfig(false)), zapcore.AddSync(logFile), level),
		zapcore.NewCore(zapcore.NewConsoleEncoder(getEncoderConfig(true)), zapcore.AddSync(os.Stdout), level),
	)

	SetLogger(zap.New(core,
		zap.AddCallerSkip(1),
		zap.Fields(zap.String("service", "recipe-importer")),
	))
	return nil
}

// SetLogger 替換全局 logger（測試時可傳入 zap.NewNop()）
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	Logger = l
	zap.ReplaceGlobals(l)
}

func filterFields(fields []zap.Field) []zap.Field {
	filtered := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		if isSensitiveKey(field.Key) {
			continue
		}
		filtered = append(filtered, field)
	}
	return filtered
}

func isSensitiveKey(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(key)]
	return ok
}

// LogInfo 記錄信息日誌
func LogInfo(msg string, fields ...zap.Field) {
	if LogMode == "concise" {
		// 精簡模式只輸出請求完成與啟動/關閉訊息
		if msg != "請求完成" && msg != "啟動應用" && msg != "Server exited" && msg != "Shutting down server..." {
			return
		}
	}
	Logger.Info(msg, filterFields(fields)...)
}

// LogError 記錄錯誤日誌
func LogError(msg string, fields ...zap.Field) {
	Logger.Error(msg, filterFields(fields)...)
}

// LogWarn 記錄警告日誌
func LogWarn(msg string, fields ...zap.Field) {
	Logger.Warn(msg, filterFields(fields)...)
}

// LogDebug 記錄調試日誌
func LogDebug(msg string, fields ...zap.Field) {
	Logger.Debug(msg, filterFields(fields)...)
}

// LogFatal 記錄致命錯誤日誌
func LogFatal(msg string, fields ...zap.Field) {
	Logger.Fatal(msg, filterFields(fields)...)
}

// LogAt 依字串級別記錄日誌，用於轉發直譯器送出的 log 訊息
func LogAt(level string, msg string, fields ...zap.Field) {
	switch ParseLevel(level) {
	case zapcore.DebugLevel:
		LogDebug(msg, fields...)
	case zapcore.WarnLevel:
		LogWarn(msg, fields...)
	case zapcore.ErrorLevel, zapcore.FatalLevel:
		LogError(msg, fields...)
	default:
		LogInfo(msg, fields...)
	}
}

// Sync 同步日誌緩衝
func Sync() {
	if Logger != nil {
		_ = Logger.Sync()
	}
}

// LogCacheHit 記錄快取命中
func LogCacheHit(cacheType, key string) {
	LogDebug("快取命中", zap.String("類型", cacheType), zap.String("key", key))
}

// LogCacheMiss 記錄快取未命中
func LogCacheMiss(cacheType, key string) {
	LogDebug("快取未命中", zap.String("類型", cacheType), zap.String("key", key))
}
