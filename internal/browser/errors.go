package browser

import (
	"errors"
	"fmt"
)

// ErrorKind 渲染服务错误分类。只有 rate_limit / http_error 两类可重试，
// 分类在网络边界一次性完成，重试子工作流只对类型做匹配，不解析字符串。
type ErrorKind string

const (
	KindRateLimit ErrorKind = "rate_limit"
	KindHTTPError ErrorKind = "http_error"
)

// RetryableError 可重试的渲染服务错误
type RetryableError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("browser: %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("browser: %s: %s", e.Kind, e.Message)
}

// AsRetryable 判断错误是否可重试；不匹配的错误一律按致命处理
func AsRetryable(err error) (*RetryableError, bool) {
	var re *RetryableError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// classifyStatus HTTP 状态码 → 错误分类（429 限流，其余非 2xx 按 http_error）
func classifyStatus(status int, message string) error {
	if status == 429 {
		return &RetryableError{Kind: KindRateLimit, StatusCode: status, Message: message}
	}
	return &RetryableError{Kind: KindHTTPError, StatusCode: status, Message: message}
}
