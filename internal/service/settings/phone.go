package settings

import (
	"strings"
	"unicode"
)

// SanitizePhone 过滤电话号码输入，仅保留数字、空白、连字符、括号与加号。
func SanitizePhone(raw string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9':
			return r
		case unicode.IsSpace(r):
			return r
		case r == '-' || r == '(' || r == ')' || r == '+':
			return r
		default:
			return -1
		}
	}, raw)
}
