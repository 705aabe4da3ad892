package domain

import (
	"regexp"
	"strings"
)

// SnippetLength 是摘要的最大字符数。
const SnippetLength = 100

var (
	// 首尾为字母或数字，中间允许 . _ -，总长 3-30
	usernameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{1,28}[a-z0-9]$`)
	htmlTagRegex  = regexp.MustCompile(`<[^>]*>`)
)

// ValidateUsername 校验认领用的用户名，入参应已经过 NormalizeUsername。
func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) || strings.Contains(username, "..") {
		return ErrInvalidUsername
	}
	return nil
}

// DeriveSnippet 取纯文本前 100 个字符；没有纯文本时取去掉标签后的 HTML。
func DeriveSnippet(text, html string) string {
	source := text
	if source == "" {
		source = htmlTagRegex.ReplaceAllString(html, "")
	}
	runes := []rune(source)
	if len(runes) > SnippetLength {
		runes = runes[:SnippetLength]
	}
	return string(runes)
}
