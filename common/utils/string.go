package utils

import (
	"github.com/duke-git/lancet/v2/strutil"
)

// IsEmpty 判断字符串是否为空白
func IsEmpty(s string) bool {
	return strutil.IsBlank(s)
}

// TruncateRunes 按字符截断，不会切断多字节字符
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
