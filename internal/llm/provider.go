// Package llm 封装模型提供方，按 Provider 选择调用策略。
package llm

import (
	"strings"
)

// Provider 模型提供方
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderDeepSeek Provider = "deepseek"
	ProviderQwen     Provider = "qwen"
	ProviderZhipu    Provider = "zhipu"
	ProviderMoonshot Provider = "moonshot"
	ProviderOllama   Provider = "ollama"
	ProviderCustom   Provider = "custom" // 任意 OpenAI 兼容接口
)

// defaultBaseURLs OpenAI 兼容提供方的默认地址
var defaultBaseURLs = map[Provider]string{
	ProviderOpenAI:   "https://api.openai.com/v1/",
	ProviderDeepSeek: "https://api.deepseek.com/v1/",
	ProviderQwen:     "https://dashscope.aliyuncs.com/compatible-mode/v1/",
	ProviderZhipu:    "https://open.bigmodel.cn/api/paas/v4/",
	ProviderMoonshot: "https://api.moonshot.cn/v1/",
	ProviderOllama:   "http://127.0.0.1:11434",
}

// ParseProvider 解析提供方名称，大小写不敏感
func ParseProvider(s string) Provider {
	return Provider(strings.ToLower(strings.TrimSpace(s)))
}

// OpenAICompatible 是否走 OpenAI 兼容协议
func (p Provider) OpenAICompatible() bool {
	switch p {
	case ProviderOpenAI, ProviderDeepSeek, ProviderQwen, ProviderZhipu, ProviderMoonshot, ProviderCustom:
		return true
	}
	return false
}

// BaseURL 返回配置地址，未配置时使用默认地址
func (p Provider) BaseURL(configured *string) string {
	if configured != nil && strings.TrimSpace(*configured) != "" {
		return *configured
	}
	return defaultBaseURLs[p]
}
