package retrieval

import (
	"strings"
	"unicode"

	"llmhub/common/utils"
)

// MaxFilterTerms 参与候选预过滤的最大词项数
const MaxFilterTerms = 5

// ExtractTerms 从查询中提取检索词项。
// 连续的中日文字符按二元组切分（单字保留），拉丁字母与数字按词切分并转小写，
// 单个非中文字符与纯标点丢弃，结果按首次出现顺序去重。
func ExtractTerms(query string) []string {
	var (
		terms []string
		word  []rune
		cjk   []rune
	)
	flushWord := func() {
		if len(word) > 1 {
			terms = append(terms, string(word))
		}
		word = word[:0]
	}
	flushCJK := func() {
		switch {
		case len(cjk) == 1:
			terms = append(terms, string(cjk))
		case len(cjk) > 1:
			for i := 0; i+1 < len(cjk); i++ {
				terms = append(terms, string(cjk[i:i+2]))
			}
		}
		cjk = cjk[:0]
	}

	for _, r := range query {
		switch {
		case isCJK(r):
			flushWord()
			cjk = append(cjk, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushCJK()
			word = append(word, unicode.ToLower(r))
		default:
			flushWord()
			flushCJK()
		}
	}
	flushWord()
	flushCJK()

	if len(terms) == 0 {
		return nil
	}
	return utils.SliceUnique(terms)
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana)
}

// FilterTerms 取前 MaxFilterTerms 个词项用于数据库预过滤
func FilterTerms(terms []string) []string {
	if len(terms) > MaxFilterTerms {
		return terms[:MaxFilterTerms]
	}
	return terms
}

// compact 小写并去掉所有空白，用于整句包含判断
func compact(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "")
}
