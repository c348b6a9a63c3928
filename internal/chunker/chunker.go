// Package chunker 将文本切分为带重叠的有序分块。
//
// 长度按字符（rune）计，token 数按 4 字符 ≈ 1 token 估算，中英文一致处理。
package chunker

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// CharsPerToken 每个 token 约等于的字符数
	CharsPerToken = 4
	// DefaultChunkSize 默认分块大小（token）
	DefaultChunkSize = 500
	// DefaultChunkOverlap 默认重叠大小（token）
	DefaultChunkOverlap = 50
)

// DefaultSeparators 默认分隔符阶梯，从段落到空格，最后一级为按字符定宽切分
var DefaultSeparators = []string{
	"\n\n",
	"\n",
	"。", "！", "？",
	". ", "! ", "? ",
	"；", "; ",
	"，", ", ",
	" ",
}

// Settings 分块参数
type Settings struct {
	ChunkSize    int      `json:"chunk_size"`    // token
	ChunkOverlap int      `json:"chunk_overlap"` // token
	Separators   []string `json:"separators"`    // 自定义分隔符，优先于默认阶梯
}

// Chunk 分块结果
type Chunk struct {
	Content    string `json:"content"`
	ChunkIndex int    `json:"chunk_index"`
	TokenCount int    `json:"token_count"`
	CharCount  int    `json:"char_count"`
}

// EstimateTokens 估算 token 数
func EstimateTokens(text string) int {
	return utf8.RuneCountInString(text) / CharsPerToken
}

var escapeReplacer = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\r`, "\r")

// UnescapeSeparator 还原前端传入的转义分隔符，如 "\\n\\n"
func UnescapeSeparator(sep string) string {
	return escapeReplacer.Replace(sep)
}

// Normalize 补齐默认值并清理分隔符
func (s Settings) Normalize() Settings {
	out := Settings{ChunkSize: s.ChunkSize, ChunkOverlap: s.ChunkOverlap}
	if out.ChunkSize <= 0 {
		out.ChunkSize = DefaultChunkSize
	}
	if out.ChunkOverlap < 0 {
		out.ChunkOverlap = 0
	}
	for _, sep := range s.Separators {
		if sep = UnescapeSeparator(sep); sep != "" {
			out.Separators = append(out.Separators, sep)
		}
	}
	return out
}

// Split 按设置切分文本，空白文本返回 nil。
// 除第一个外，每个分块都以前一分块末尾不超过 overlap 个字符开头。
func Split(text string, settings Settings) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	s := settings.Normalize()
	target := s.ChunkSize * CharsPerToken
	overlap := s.ChunkOverlap * CharsPerToken

	var cores []string
	if len(s.Separators) > 0 {
		for _, section := range splitSections(text, s.Separators) {
			if runeLen(section) <= target {
				cores = append(cores, section)
				continue
			}
			cores = append(cores, splitRecursive(section, DefaultSeparators, target, overlap)...)
		}
	} else {
		cores = splitRecursive(text, DefaultSeparators, target, overlap)
	}

	chunks := make([]Chunk, 0, len(cores))
	prev := ""
	for _, core := range cores {
		if strings.TrimSpace(core) == "" {
			continue
		}
		content := core
		if len(chunks) > 0 && overlap > 0 {
			content = tail(prev, overlap) + core
		}
		prev = content
		chunks = append(chunks, Chunk{
			Content:    content,
			ChunkIndex: len(chunks),
			TokenCount: EstimateTokens(content),
			CharCount:  runeLen(content),
		})
	}
	return chunks
}

// splitSections 按自定义分隔符切分，分隔符作为后一段的前缀保留
func splitSections(text string, separators []string) []string {
	seps := append([]string(nil), separators...)
	// 同一位置优先匹配更长的分隔符
	sort.SliceStable(seps, func(i, j int) bool { return len(seps[i]) > len(seps[j]) })
	quoted := make([]string, len(seps))
	for i, sep := range seps {
		quoted[i] = regexp.QuoteMeta(sep)
	}
	re := regexp.MustCompile(strings.Join(quoted, "|"))

	var sections []string
	start := 0
	for _, loc := range re.FindAllStringIndex(text, -1) {
		if loc[0] > start {
			sections = append(sections, text[start:loc[0]])
		}
		start = loc[0]
	}
	if start < len(text) {
		sections = append(sections, text[start:])
	}
	return sections
}

// splitRecursive 产出互不重叠、长度不超过 target 的片段，重叠在 Split 中统一拼接
func splitRecursive(text string, separators []string, target, overlap int) []string {
	if runeLen(text) <= target {
		return []string{text}
	}
	for i, sep := range separators {
		if !strings.Contains(text, sep) {
			continue
		}
		pieces := strings.Split(text, sep)
		if countNonEmpty(pieces) <= 1 {
			continue
		}
		return mergePieces(pieces, sep, separators[i+1:], target, overlap)
	}
	return splitWindows(text, target, overlap)
}

// mergePieces 贪心装箱：累积片段直到再加一个会超出 target
func mergePieces(pieces []string, sep string, rest []string, target, overlap int) []string {
	var (
		out    []string
		cur    []string
		curLen int
	)
	sepLen := runeLen(sep)
	flush := func() {
		if len(cur) > 0 {
			out = append(out, strings.Join(cur, sep))
			cur, curLen = nil, 0
		}
	}

	for _, p := range pieces {
		if p == "" {
			continue
		}
		pl := runeLen(p)
		if pl > target {
			flush()
			out = append(out, splitRecursive(p, rest, target, overlap)...)
			continue
		}
		add := pl
		if len(cur) > 0 {
			add += sepLen
		}
		if curLen+add > target {
			flush()
			add = pl
		}
		cur = append(cur, p)
		curLen += add
	}
	flush()
	return out
}

// splitWindows 按字符定宽切分，步长 max(1, target-overlap)，起点严格递增
func splitWindows(text string, target, overlap int) []string {
	runes := []rune(text)
	width := target - overlap
	if width < 1 {
		width = 1
	}
	out := make([]string, 0, len(runes)/width+1)
	for start := 0; start < len(runes); start += width {
		end := start + width
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

func tail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func countNonEmpty(pieces []string) int {
	n := 0
	for _, p := range pieces {
		if p != "" {
			n++
		}
	}
	return n
}
