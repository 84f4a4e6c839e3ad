package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// L 全局 logger
	L zerolog.Logger
)

// Init 初始化日志器
func Init(production bool) error {
	zerolog.TimeFieldFormat = time.RFC3339

	if production {
		// 生产环境：JSON 格式输出
		L = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Caller().
			Logger()
	} else {
		// 开发环境：控制台友好格式
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
			// 自定义字段输出顺序（流水线日志的常见顺序）
			FieldsOrder: []string{
				"request_id",  // 1. 请求 ID
				"workflow_id", // 2. 工作流 ID
				"card_id",     // 3. 卡片 ID
				"stage",       // 4. 流水线阶段
				"status",      // 5. 状态
				"duration(ms)", // 6. 耗时
				"error_type",  // 7. 错误分类
				"errors",      // 8. 错误信息
			},
		}
		L = zerolog.New(output).
			With().
			Timestamp().
			Caller().
			Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	return nil
}

// Sync zerolog 不需要显式 sync，保留接口兼容性
func Sync() {
}

// SetLevel 设置日志级别
func SetLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// WithRequestID 添加 request_id。
// 返回指针：zerolog 的级别方法是指针接收者，返回值上直接链式调用会编译不过。
func WithRequestID(requestID string) *zerolog.Logger {
	l := L.With().Str("request_id", requestID).Logger()
	return &l
}

// WithCardID 添加 card_id
func WithCardID(cardID string) *zerolog.Logger {
	l := L.With().Str("card_id", cardID).Logger()
	return &l
}

// WithWorkflowID 添加 workflow_id
func WithWorkflowID(workflowID string) *zerolog.Logger {
	l := L.With().Str("workflow_id", workflowID).Logger()
	return &l
}

// WithStage 添加流水线阶段
func WithStage(stage string) *zerolog.Logger {
	l := L.With().Str("stage", stage).Logger()
	return &l
}

// Debug 输出 debug 级别日志
func Debug() *zerolog.Event {
	return L.Debug()
}

// Info 输出 info 级别日志
func Info() *zerolog.Event {
	return L.Info()
}

// Warn 输出 warn 级别日志
func Warn() *zerolog.Event {
	return L.Warn()
}

// Error 输出 error 级别日志
func Error() *zerolog.Event {
	return L.Error()
}

// Fatal 输出 fatal 级别日志并退出
func Fatal() *zerolog.Event {
	return L.Fatal()
}
