// Package llm 提供 LLM API 客户端与响应清洗功能
package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// ErrUnparseable 响应在修复尝试耗尽后仍无法解析为 JSON
var ErrUnparseable = errors.New("unparseable LLM response")

var trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)

// Normalize 清洗模型返回的文本。
// expectJSON 为 false 时仅去除首尾空白，不做任何修复；
// 为 true 时先尝试严格解析，失败后按固定顺序执行尽力修复：
// 剥离代码块围栏、转义游离引号、转义字符串内换行、
// 奇数引号时截断到最后一个右花括号、去除尾逗号，再重试解析。
// 修复是启发式的，可能对对抗性输入误修，调用方默认输入来自配合的模型。
func Normalize(raw string, expectJSON bool) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if !expectJSON {
		return trimmed, nil
	}

	cleaned := stripCodeFence(trimmed)

	// 先直接解析
	if out, err := canonicalJSON(cleaned); err == nil {
		return out, nil
	}

	// 修复后重试
	repaired := repairJSON(cleaned)
	out, err := canonicalJSON(repaired)
	if err != nil {
		return "", fmt.Errorf("%w: %v (text: %s)", ErrUnparseable, err, repaired)
	}
	return out, nil
}

// stripCodeFence 剥离首尾的 Markdown 代码块标记
func stripCodeFence(s string) string {
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	if strings.HasSuffix(strings.TrimSpace(s), "```") {
		s = strings.TrimSpace(s)
		s = s[:len(s)-len("```")]
	}
	return strings.TrimSpace(s)
}

// canonicalJSON 严格解析并重新序列化为规范 JSON 文本
func canonicalJSON(s string) (string, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	// 确保没有拖尾内容
	if _, err := dec.Token(); err != io.EOF {
		return "", fmt.Errorf("trailing data after JSON value")
	}

	var buf strings.Builder
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

// repairJSON 按顺序应用全部修复步骤
func repairJSON(s string) string {
	s = escapeStringBodies(s)

	// 引号数为奇数时认为字符串未闭合，截断到最后一个完整对象边界
	if countUnescapedQuotes(s)%2 != 0 {
		if idx := strings.LastIndex(s, "}"); idx > 0 {
			s = s[:idx+1]
		}
	}

	// 去除紧邻右括号的尾逗号
	s = trailingCommaRe.ReplaceAllString(s, "$1")

	return s
}

// escapeStringBodies 扫描文本，对字符串内部的游离引号和字面换行做转义。
// 位于字符串内、且后面紧跟的非空白字符不是 , } ] : 之一的未转义引号，
// 视为内容引号而非闭合引号。
func escapeStringBodies(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	inString := false
	escaped := false
	runes := []rune(s)

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if !inString {
			if r == '"' {
				inString = true
			}
			b.WriteRune(r)
			continue
		}

		if escaped {
			escaped = false
			b.WriteRune(r)
			continue
		}

		switch r {
		case '\\':
			escaped = true
			b.WriteRune(r)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '"':
			if isClosingQuote(runes, i) {
				inString = false
				b.WriteRune(r)
			} else {
				b.WriteString(`\"`)
			}
		default:
			b.WriteRune(r)
		}
	}

	return b.String()
}

// isClosingQuote 判断位置 i 处的引号是否闭合当前字符串
func isClosingQuote(runes []rune, i int) bool {
	for j := i + 1; j < len(runes); j++ {
		switch runes[j] {
		case ' ', '\t', '\n', '\r':
			continue
		case ',', '}', ']', ':':
			return true
		default:
			return false
		}
	}
	// 字符串终止于输入末尾
	return true
}

// countUnescapedQuotes 统计未转义的双引号个数
func countUnescapedQuotes(s string) int {
	n := 0
	escaped := false
	for _, r := range s {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '"':
			n++
		}
	}
	return n
}
