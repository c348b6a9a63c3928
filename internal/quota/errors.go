package quota

import (
	"fmt"

	"llmhub/internal/types"
)

// Dimension 配额维度
type Dimension string

const (
	DailyToken     Dimension = "daily_token"
	MonthlyToken   Dimension = "monthly_token"
	DailyRequest   Dimension = "daily_request"
	MonthlyRequest Dimension = "monthly_request"
)

// ExceededError 超出配额，Dimension 为首个被突破的维度
type ExceededError struct {
	Dimension Dimension `json:"quota_type"`
	Limit     int64     `json:"limit"`
	Used      int64     `json:"used"`
	Requested int64     `json:"requested"`
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("模型用量超出配额: %s (已用 %d, 本次 %d, 限额 %d)", e.Dimension, e.Used, e.Requested, e.Limit)
}

// Unwrap 使 errors.Is(err, types.ErrQuotaExceeded) 成立
func (e *ExceededError) Unwrap() error {
	return types.ErrQuotaExceeded
}
