package extract

import (
	"regexp"
	"strings"
)

var (
	blankLinesRe  = regexp.MustCompile(`\n{2,}`)
	inlineSpaceRe = regexp.MustCompile(`[^\S\n]+`)
	htmlDropRe    = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	htmlBreakRe   = regexp.MustCompile(`(?i)<\s*(br|/p|/div|/li|/h[1-6]|/tr)\s*/?>`)
	htmlTagRe     = regexp.MustCompile(`<[^>]+>`)
)

// CleanText 规范化文本：去除 NUL 并统一换行；clean 为 true 时再压缩行内空白、裁剪每行、合并空行
func CleanText(text string, clean bool) string {
	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if !clean {
		return text
	}

	text = inlineSpaceRe.ReplaceAllString(text, " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = blankLinesRe.ReplaceAllString(strings.Join(lines, "\n"), "\n")
	return strings.TrimSpace(text)
}

var htmlEntities = strings.NewReplacer(
	"&nbsp;", " ",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&amp;", "&",
)

// stripHTML 去除标签，保留块级元素处的换行
func stripHTML(s string) string {
	s = htmlDropRe.ReplaceAllString(s, "")
	s = htmlBreakRe.ReplaceAllString(s, "\n")
	s = htmlTagRe.ReplaceAllString(s, "")
	return htmlEntities.Replace(s)
}
