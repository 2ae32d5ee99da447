package binding

import (
	"fmt"
	"regexp"
	"strings"
)

var exprPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Interpolate 将模板中的 ${name} 替换为 data 中对应的值，
// 主要用于页码模板（如 "Page ${page} of ${pages}"）。
// 若 data 为空或名字不存在，则返回原占位符。
func Interpolate(text string, data map[string]any) string {
	if len(data) == 0 {
		return text
	}
	return exprPattern.ReplaceAllStringFunc(text, func(match string) string {
		groups := exprPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		name := strings.TrimSpace(groups[1])
		if name == "" {
			return match
		}
		if val, ok := data[name]; ok {
			return fmt.Sprint(val)
		}
		return match
	})
}
