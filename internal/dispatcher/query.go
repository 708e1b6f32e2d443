package dispatcher

import (
	"net/url"
	"strings"
)

// parseQuery 宽松解析原始查询串
//
// 只按 & 分隔参数，键值按第一个 = 拆分，没有 = 的参数取空值。
// + 解码为空格，合法的 %XX 被解码，非法的百分号序列原样保留。
// net/url 遇到 ; 或非法转义会丢弃整个参数，这里不会。
func parseQuery(raw string) url.Values {
	values := make(url.Values)
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		k := unescape(key)
		values[k] = append(values[k], unescape(value))
	}
	return values
}

// unescape 解码单个查询组件，保留无法解码的百分号序列
func unescape(s string) string {
	if !strings.ContainsAny(s, "+%") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '+':
			b.WriteByte(' ')
		case c == '%' && i+2 < len(s) && ishex(s[i+1]) && ishex(s[i+2]):
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func ishex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
