package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"sync"
)

// Code 表示系统内的统一错误码。
type Code string

// Severity 描述错误的严重程度，用于告警和审计。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Attributes 为错误码提供默认行为。
type Attributes struct {
	Message    string
	Severity   Severity
	HTTPStatus int
	Alert      bool
}

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown: {
			Message:    "unknown error",
			Severity:   SeverityCritical,
			HTTPStatus: http.StatusInternalServerError,
			Alert:      true,
		},
		CodeInvalidArgument: {
			Message:    "invalid argument",
			Severity:   SeverityInfo,
			HTTPStatus: http.StatusBadRequest,
		},
		CodeInvalidAddress: {
			Message:    "invalid address",
			Severity:   SeverityInfo,
			HTTPStatus: http.StatusBadRequest,
		},
		CodeMissingAllocations: {
			Message:    "no target allocations provided",
			Severity:   SeverityInfo,
			HTTPStatus: http.StatusBadRequest,
		},
		CodePriceFeedUnavailable: {
			Message:    "price feed unavailable",
			Severity:   SeverityCritical,
			HTTPStatus: http.StatusInternalServerError,
			Alert:      true,
		},
		CodePerTokenFetchFailure: {
			Message:    "token data unavailable",
			Severity:   SeverityWarning,
			HTTPStatus: http.StatusInternalServerError,
		},
		CodeQuoteUnavailable: {
			Message:    "quote unavailable",
			Severity:   SeverityWarning,
			HTTPStatus: http.StatusInternalServerError,
			Alert:      true,
		},
		CodeIndexOutOfRange: {
			Message:    "action index out of range",
			Severity:   SeverityInfo,
			HTTPStatus: http.StatusInternalServerError,
		},
		CodePlanNotFound: {
			Message:    "plan not found or expired",
			Severity:   SeverityInfo,
			HTTPStatus: http.StatusNotFound,
		},
		CodePlanMismatch: {
			Message:    "plan does not belong to request",
			Severity:   SeverityInfo,
			HTTPStatus: http.StatusConflict,
		},
		CodeUpstreamFailure: {
			Message:    "upstream call failed",
			Severity:   SeverityWarning,
			HTTPStatus: http.StatusInternalServerError,
		},
		CodeStorageFailure: {
			Message:    "storage failure",
			Severity:   SeverityCritical,
			HTTPStatus: http.StatusInternalServerError,
			Alert:      true,
		},
		CodeInitializationFailure: {
			Message:    "service not initialized",
			Severity:   SeverityWarning,
			HTTPStatus: http.StatusServiceUnavailable,
			Alert:      true,
		},
	}
)

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeInvalidAddress        Code = "INVALID_ADDRESS"
	CodeMissingAllocations    Code = "MISSING_ALLOCATIONS"
	CodePriceFeedUnavailable  Code = "PRICE_FEED_UNAVAILABLE"
	CodePerTokenFetchFailure  Code = "PER_TOKEN_FETCH_FAILURE"
	CodeQuoteUnavailable      Code = "QUOTE_UNAVAILABLE"
	CodeIndexOutOfRange       Code = "INDEX_OUT_OF_RANGE"
	CodePlanNotFound          Code = "PLAN_NOT_FOUND"
	CodePlanMismatch          Code = "PLAN_MISMATCH"
	CodeUpstreamFailure       Code = "UPSTREAM_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
)

// AttributesOf 返回错误码对应的属性。若未注册则返回 UNKNOWN 的属性。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	attr, ok := registry[code]
	registryMu.RUnlock()
	if ok {
		return attr
	}
	registryMu.RLock()
	fallback := registry[CodeUnknown]
	registryMu.RUnlock()
	return fallback
}

// Error 是系统内统一的错误类型。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
	status   *int
	alert    *bool
	severity *Severity
}

// Option 定义可选配置。
type Option func(*Error)

// WithMetadata 附加额外信息。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithHTTPStatus 覆盖默认的 HTTP 状态码。
func WithHTTPStatus(status int) Option {
	return func(e *Error) {
		e.status = &status
	}
}

// WithAlert 指定错误是否需要告警。
func WithAlert(alert bool) Option {
	return func(e *Error) {
		e.alert = &alert
	}
}

// WithSeverity 覆盖默认严重程度。
func WithSeverity(sev Severity) Option {
	return func(e *Error) {
		e.severity = &sev
	}
}

// New 创建一个新的错误实例。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 在已有错误外包裹统一错误类型。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

// Error 实现 error 接口。
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Unwrap 实现 errors.Unwrap。
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 允许通过 errors.Is 判断是否相同错误码。
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回错误信息。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加信息。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// HTTPStatus 返回错误对应的 HTTP 状态码。
func (e *Error) HTTPStatus() int {
	if e == nil {
		return http.StatusInternalServerError
	}
	if e.status != nil {
		return *e.status
	}
	return AttributesOf(e.code).HTTPStatus
}

// ShouldAlert 判断是否需要告警。
func (e *Error) ShouldAlert() bool {
	if e == nil {
		return false
	}
	if e.alert != nil {
		return *e.alert
	}
	attr := AttributesOf(e.code)
	return attr.Alert
}

// Severity 返回错误严重程度。
func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	if e.severity != nil {
		return *e.severity
	}
	attr := AttributesOf(e.code)
	return attr.Severity
}

// From 尝试从 error 中解析统一错误类型。
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误对应的错误码。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// HTTPStatusOf 返回任意 error 对应的 HTTP 状态码，未分类错误统一为 500。
func HTTPStatusOf(err error) int {
	if e, ok := From(err); ok {
		return e.HTTPStatus()
	}
	return AttributesOf(CodeUnknown).HTTPStatus
}

// ShouldAlert 判断是否需要触发告警。
func ShouldAlert(err error) bool {
	if e, ok := From(err); ok {
		return e.ShouldAlert()
	}
	return false
}

// SeverityOf 返回错误严重程度。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}
