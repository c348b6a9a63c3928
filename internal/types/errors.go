package types

import (
	"errors"
	"fmt"
)

// ErrorCode 错误码
type ErrorCode string

const (
	// 通用错误码
	ErrCodeUnknown          ErrorCode = "UNKNOWN_ERROR"
	ErrCodeInvalidParameter ErrorCode = "INVALID_PARAMETER"
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeConflict         ErrorCode = "CONFLICT"

	// 知识库相关错误码
	ErrCodeKnowledgeBaseNotFound ErrorCode = "KNOWLEDGE_BASE_NOT_FOUND"
	ErrCodeDocumentNotFound      ErrorCode = "DOCUMENT_NOT_FOUND"
	ErrCodeChunkNotFound         ErrorCode = "CHUNK_NOT_FOUND"
	ErrCodeDocumentBusy          ErrorCode = "DOCUMENT_BUSY"
	ErrCodeExtractFailed         ErrorCode = "EXTRACT_FAILED"
	ErrCodeNoChunks              ErrorCode = "NO_CHUNKS"

	// 模型与配额相关错误码
	ErrCodeModelNotFound          ErrorCode = "MODEL_NOT_FOUND"
	ErrCodeModelDisabled          ErrorCode = "MODEL_DISABLED"
	ErrCodeModelNotConfigured     ErrorCode = "MODEL_NOT_CONFIGURED"
	ErrCodeProviderUnsupported    ErrorCode = "PROVIDER_UNSUPPORTED"
	ErrCodeEmbeddingFailed        ErrorCode = "EMBEDDING_FAILED"
	ErrCodeTeamModelNotFound      ErrorCode = "TEAM_MODEL_NOT_FOUND"
	ErrCodeTeamModelDisabled      ErrorCode = "TEAM_MODEL_DISABLED"
	ErrCodeQuotaExceeded          ErrorCode = "QUOTA_EXCEEDED"
	ErrCodeVectorStoreUnavailable ErrorCode = "VECTOR_STORE_UNAVAILABLE"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回原始错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is 按错误码比较，预定义错误可直接用于 errors.Is
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// NewAppError 创建应用错误
func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// NewAppErrorWithDetails 创建带详情的应用错误
func NewAppErrorWithDetails(code ErrorCode, message, details string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewAppErrorWithCause 创建带原因的应用错误
func NewAppErrorWithCause(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: cause.Error(),
		Cause:   cause,
	}
}

// 预定义错误
var (
	ErrKnowledgeBaseNotFound = NewAppError(ErrCodeKnowledgeBaseNotFound, "知识库不存在")
	ErrDocumentNotFound      = NewAppError(ErrCodeDocumentNotFound, "文档不存在")
	ErrChunkNotFound         = NewAppError(ErrCodeChunkNotFound, "分块不存在")
	ErrDocumentBusy          = NewAppError(ErrCodeDocumentBusy, "文档正在处理中")
	ErrNoChunks              = NewAppError(ErrCodeNoChunks, "文档未生成任何分块")

	ErrModelNotFound       = NewAppError(ErrCodeModelNotFound, "模型不存在")
	ErrModelDisabled       = NewAppError(ErrCodeModelDisabled, "模型已禁用")
	ErrModelNotConfigured  = NewAppError(ErrCodeModelNotConfigured, "未配置嵌入模型")
	ErrTeamModelNotFound   = NewAppError(ErrCodeTeamModelNotFound, "团队未开通该模型")
	ErrTeamModelDisabled   = NewAppError(ErrCodeTeamModelDisabled, "团队模型已禁用")
	ErrQuotaExceeded       = NewAppError(ErrCodeQuotaExceeded, "模型用量超出配额")
	ErrVectorStoreDisabled = NewAppError(ErrCodeVectorStoreUnavailable, "向量库未启用")
)

// GetErrorCode 获取错误码，沿错误链查找
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeUnknown
}
