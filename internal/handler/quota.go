package handler

import (
	"github.com/gofiber/fiber/v2"

	"llmhub/common/response"
)

// QuotaResetReq 手动重置请求
type QuotaResetReq struct {
	Scope string `json:"scope" validate:"required,oneof=daily monthly all"`
}

// QuotaResetResult 重置的记录数
type QuotaResetResult struct {
	Daily   int64 `json:"daily"`
	Monthly int64 `json:"monthly"`
}

// ModelUsage 团队模型用量
// GET /api/teams/:teamId/models/:modelId/usage
func (h *Handler) ModelUsage(c *fiber.Ctx) error {
	teamID, err := paramID(c, "teamId")
	if err != nil {
		return fail(c, err)
	}
	modelID, err := paramID(c, "modelId")
	if err != nil {
		return fail(c, err)
	}
	stats, err := h.svc.Tracker.GetUsageStats(c.UserContext(), teamID, modelID)
	if err != nil {
		return fail(c, err)
	}
	return response.Success(c, stats)
}

// QuotaReset 立即执行配额批量重置
// POST /api/quota/reset
func (h *Handler) QuotaReset(c *fiber.Ctx) error {
	var req QuotaResetReq
	if err := h.bind(c, &req); err != nil {
		return fail(c, err)
	}

	var res QuotaResetResult
	var err error
	if req.Scope == "daily" || req.Scope == "all" {
		if res.Daily, err = h.svc.Tracker.ResetDailyUsage(c.UserContext()); err != nil {
			return fail(c, err)
		}
	}
	if req.Scope == "monthly" || req.Scope == "all" {
		if res.Monthly, err = h.svc.Tracker.ResetMonthlyUsage(c.UserContext()); err != nil {
			return fail(c, err)
		}
	}
	return response.Success(c, res)
}
