// Package errors 提供應用程式錯誤處理
package errors

import (
	"errors"
	"fmt"
)

// 定義錯誤碼
const (
	// ErrCodeInvalidInput 無效輸入
	ErrCodeInvalidInput = "INVALID_INPUT"
	// ErrCodeConstraintViolation 唯一性約束衝突
	ErrCodeConstraintViolation = "CONSTRAINT_VIOLATION"
	// ErrCodeConstraintSetup 索引建立衝突
	ErrCodeConstraintSetup = "CONSTRAINT_SETUP"
	// ErrCodeUnavailable 資料庫不可用
	ErrCodeUnavailable = "SERVICE_UNAVAILABLE"
	// ErrCodeInternal 內部錯誤
	ErrCodeInternal = "INTERNAL_ERROR"
)

// AppError 應用程式錯誤
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

// Error 實現 error 介面
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 實現 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 實現 errors.Is
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 創建新的應用程式錯誤
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包裝錯誤
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithDetails 添加詳細資訊
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// 預定義錯誤
var (
	// ErrEmailRequired upsert-contact 請求缺少 email
	ErrEmailRequired = New(ErrCodeInvalidInput, "email is required")

	// ErrFieldOverlap 一般設定欄位與僅建立欄位重疊
	ErrFieldOverlap = New(ErrCodeInvalidInput, "set and insert-only fields overlap")

	// ErrDuplicateKey 唯一索引衝突
	ErrDuplicateKey = New(ErrCodeConstraintViolation, "duplicate email")

	// ErrIndexConflict 既有索引與唯一索引定義衝突
	ErrIndexConflict = New(ErrCodeConstraintSetup, "conflicting index on email")

	// ErrStoreUnavailable 資料庫不可用
	ErrStoreUnavailable = New(ErrCodeUnavailable, "document store unavailable")
)

// IsInvalidInput 檢查是否為無效輸入錯誤
func IsInvalidInput(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeInvalidInput
	}
	return false
}

// IsConstraintViolation 檢查是否為唯一性約束衝突
func IsConstraintViolation(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeConstraintViolation
	}
	return false
}

// IsConstraintSetup 檢查是否為索引建立衝突
func IsConstraintSetup(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeConstraintSetup
	}
	return false
}

// IsUnavailable 檢查是否為資料庫不可用錯誤
func IsUnavailable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeUnavailable
	}
	return false
}

// Message 取得適合回應給呼叫端的訊息
//
// AppError 直接使用其 Message；其他錯誤一律回傳通用訊息，
// 避免把內部細節洩漏到 HTTP 回應。
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}
