package handler

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"llmhub/common/logger"
	"llmhub/common/response"
	"llmhub/internal/quota"
	"llmhub/internal/svc"
	"llmhub/internal/types"
)

// Handler HTTP 处理器
type Handler struct {
	svc      *svc.ServiceContext
	validate *validator.Validate
}

// New 创建处理器
func New(s *svc.ServiceContext) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	// 字段错误使用 json 名称
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{svc: s, validate: v}
}

// paramID 解析路径中的正整数ID
func paramID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, types.NewAppErrorWithDetails(types.ErrCodeInvalidParameter, "无效的ID", name)
	}
	return id, nil
}

// bind 解析请求体并校验
func (h *Handler) bind(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return types.NewAppErrorWithCause(types.ErrCodeInvalidParameter, "参数解析失败", err)
	}
	return h.check(req)
}

func (h *Handler) check(req any) error {
	if err := h.validate.Struct(req); err != nil {
		return err
	}
	return nil
}

// fail 将错误映射为 HTTP 响应
func fail(c *fiber.Ctx, err error) error {
	var exceeded *quota.ExceededError
	if errors.As(err, &exceeded) {
		return response.TooManyRequests(c, exceeded.Error(), exceeded)
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, e := range verrs {
			fields[e.Field()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return response.BadRequest(c, "参数校验失败", fields)
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		logger.Error("请求处理失败", zap.String("path", c.Path()), zap.Error(err))
		return response.ServerError(c, "")
	}

	switch appErr.Code {
	case types.ErrCodeNotFound,
		types.ErrCodeKnowledgeBaseNotFound,
		types.ErrCodeDocumentNotFound,
		types.ErrCodeChunkNotFound,
		types.ErrCodeModelNotFound,
		types.ErrCodeTeamModelNotFound:
		return response.NotFound(c, appErr.Message)
	case types.ErrCodeInvalidParameter,
		types.ErrCodeNoChunks,
		types.ErrCodeModelNotConfigured,
		types.ErrCodeProviderUnsupported:
		return response.BadRequest(c, appErr.Message, appErr.Details)
	case types.ErrCodeDocumentBusy, types.ErrCodeConflict:
		return response.Conflict(c, appErr.Message, appErr.Details)
	case types.ErrCodeModelDisabled, types.ErrCodeTeamModelDisabled:
		return response.ErrorWithStatus(c, fiber.StatusForbidden, fiber.StatusForbidden, appErr.Message, nil)
	case types.ErrCodeExtractFailed,
		types.ErrCodeEmbeddingFailed,
		types.ErrCodeVectorStoreUnavailable:
		return response.ErrorWithStatus(c, fiber.StatusBadGateway, fiber.StatusBadGateway, appErr.Message, appErr.Details)
	default:
		logger.Error("请求处理失败", zap.String("path", c.Path()), zap.Error(err))
		return response.ServerError(c, appErr.Message)
	}
}
