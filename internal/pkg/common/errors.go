package common

import (
	"errors"
	"net/http"
)

// ErrorResponse 定義 API 錯誤響應結構
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"` // 僅在開發模式顯示
}

// CustomError 定義自定義錯誤類型
type CustomError struct {
	Code    string // 錯誤代碼
	Message string // 錯誤信息
	Err     error  // 原始錯誤
	Status  int    // HTTP 狀態碼
}

func (e *CustomError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *CustomError) Unwrap() error {
	return e.Err
}

// NewError 創建新的自定義錯誤
func NewError(code string, message string, status int, err error) *CustomError {
	return &CustomError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Wrap 以預定義錯誤為模板包裝原始錯誤
func (e *CustomError) Wrap(err error) *CustomError {
	return NewError(e.Code, e.Message, e.Status, err)
}

// ValidationError 表示驗證錯誤
type ValidationError struct {
	message string
}

// Error 實現 error 介面
func (e *ValidationError) Error() string {
	return e.message
}

// NewValidationError 創建新的驗證錯誤
func NewValidationError(message string) error {
	return &ValidationError{message: message}
}

// IsValidationError 檢查是否為驗證錯誤
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// 預定義錯誤代碼
const (
	// 客戶端錯誤 (4xx)
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeTooManyRequests = "TOO_MANY_REQUESTS"
	ErrCodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	ErrCodeUnsupportedHost = "UNSUPPORTED_HOST"
	ErrCodeNoRecipeFound   = "NO_RECIPE_FOUND"
	ErrCodeAuthRequired    = "AUTHENTICATION_REQUIRED"
	ErrCodeAuthFailed      = "AUTHENTICATION_FAILED"
	ErrCodeInvalidPhase    = "INVALID_PHASE"
	ErrCodeSessionNotFound = "SESSION_NOT_FOUND"

	// 服務器錯誤 (5xx)
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeGatewayTimeout     = "GATEWAY_TIMEOUT"
	ErrCodeRuntimeError       = "RUNTIME_ERROR"
	ErrCodeCommitFailure      = "COMMIT_FAILURE"
)

// 預定義錯誤
var (
	ErrInvalidRequest  = NewError(ErrCodeInvalidRequest, "無效的請求", http.StatusBadRequest, nil)
	ErrTooManyRequests = NewError(ErrCodeTooManyRequests, "請求過於頻繁", http.StatusTooManyRequests, nil)
	ErrPayloadTooLarge = NewError(ErrCodePayloadTooLarge, "請求內容過大", http.StatusRequestEntityTooLarge, nil)

	ErrInternalError      = NewError(ErrCodeInternalError, "服務器內部錯誤", http.StatusInternalServerError, nil)
	ErrServiceUnavailable = NewError(ErrCodeServiceUnavailable, "服務暫時不可用", http.StatusServiceUnavailable, nil)
	ErrGatewayTimeout     = NewError(ErrCodeGatewayTimeout, "網關超時", http.StatusGatewayTimeout, nil)

	// 業務錯誤
	ErrUnsupportedHost = NewError(ErrCodeUnsupportedHost, "不支援的網站", http.StatusBadRequest, nil)
	ErrNoRecipeFound   = NewError(ErrCodeNoRecipeFound, "頁面中找不到食譜", http.StatusUnprocessableEntity, nil)
	ErrAuthRequired    = NewError(ErrCodeAuthRequired, "此網站需要登入", http.StatusUnauthorized, nil)
	ErrAuthFailed      = NewError(ErrCodeAuthFailed, "登入失敗", http.StatusBadGateway, nil)
	ErrRuntimeError    = NewError(ErrCodeRuntimeError, "直譯器執行錯誤", http.StatusBadGateway, nil)
	ErrCommitFailure   = NewError(ErrCodeCommitFailure, "匯入寫入失敗", http.StatusInternalServerError, nil)
	ErrInvalidPhase    = NewError(ErrCodeInvalidPhase, "目前階段不允許此操作", http.StatusConflict, nil)
	ErrSessionNotFound = NewError(ErrCodeSessionNotFound, "匯入工作階段不存在", http.StatusNotFound, nil)
)
