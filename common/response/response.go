package response

import (
	"github.com/gofiber/fiber/v2"
)

// Response 统一响应结构
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// 响应码定义
const (
	CodeSuccess         = 0
	CodeBadRequest      = 400
	CodeNotFound        = 404
	CodeConflict        = 409
	CodeTooManyRequests = 429
	CodeServerError     = 500
)

// 响应消息定义
const (
	MsgSuccess     = "success"
	MsgBadRequest  = "bad request"
	MsgNotFound    = "not found"
	MsgServerError = "server error"
)

// Success 成功响应
func Success(c *fiber.Ctx, data any) error {
	return c.JSON(Response{
		Code:    CodeSuccess,
		Message: MsgSuccess,
		Data:    data,
	})
}

// ErrorWithStatus 指定 HTTP 状态码与业务码的错误响应
func ErrorWithStatus(c *fiber.Ctx, status, code int, message string, data any) error {
	return c.Status(status).JSON(Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// BadRequest 参数错误响应，details 为字段级错误
func BadRequest(c *fiber.Ctx, message string, details any) error {
	if message == "" {
		message = MsgBadRequest
	}
	return ErrorWithStatus(c, fiber.StatusBadRequest, CodeBadRequest, message, details)
}

// NotFound 未找到响应
func NotFound(c *fiber.Ctx, message string) error {
	if message == "" {
		message = MsgNotFound
	}
	return ErrorWithStatus(c, fiber.StatusNotFound, CodeNotFound, message, nil)
}

// TooManyRequests 配额超限响应
func TooManyRequests(c *fiber.Ctx, message string, data any) error {
	return ErrorWithStatus(c, fiber.StatusTooManyRequests, CodeTooManyRequests, message, data)
}

// ServerError 服务器错误响应
func ServerError(c *fiber.Ctx, message string) error {
	if message == "" {
		message = MsgServerError
	}
	return ErrorWithStatus(c, fiber.StatusInternalServerError, CodeServerError, message, nil)
}

// Conflict 资源状态冲突响应
func Conflict(c *fiber.Ctx, message string, data any) error {
	return ErrorWithStatus(c, fiber.StatusConflict, CodeConflict, message, data)
}
