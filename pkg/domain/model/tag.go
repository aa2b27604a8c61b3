package model

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxTagNameLength 标签名最大字符数
const MaxTagNameLength = 64

// Tag 标签及其实时关联的图片数量，Count 只在读取时计算
type Tag struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// SanitizeTagName 去除首尾空白和控制字符，并截断到最大长度。大小写保持不变。
func SanitizeTagName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == utf8.RuneError {
			return -1
		}
		return r
	}, name)
	cleaned = strings.TrimSpace(cleaned)

	if utf8.RuneCountInString(cleaned) > MaxTagNameLength {
		runes := []rune(cleaned)
		cleaned = strings.TrimSpace(string(runes[:MaxTagNameLength]))
	}
	return cleaned
}

// NormalizeTagNames 清洗并去重，保留首次出现的顺序，丢弃空标签
func NormalizeTagNames(names []string) []string {
	result := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		clean := SanitizeTagName(n)
		if clean == "" {
			continue
		}
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		result = append(result, clean)
	}
	return result
}

// SplitTagList 解析 "a,b, c" 形式的查询参数
func SplitTagList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return NormalizeTagNames(strings.Split(raw, ","))
}
