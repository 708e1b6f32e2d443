// Package wire 按照旧版服务的字节格式编码响应体。
//
// 旧版服务的 JSON 使用 ", " 和 ": " 作为分隔符，并把所有非 ASCII 可打印
// 字符转义为小写的 \uXXXX。encoding/json 无法产生这种格式，因此在此手写。
package wire

import (
	"bytes"
	"strconv"
)

const (
	JSONContentType = "application/json; charset=utf-8"
	TextContentType = "text/plain; charset=utf-8"
)

// Field 有序 JSON 对象中的一个成员，Value 支持 bool、string 和整数
type Field struct {
	Key   string
	Value interface{}
}

// Object 按给定顺序编码 JSON 对象
func Object(fields ...Field) []byte {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			b.WriteString(", ")
		}
		writeString(&b, f.Key)
		b.WriteString(": ")
		switch v := f.Value.(type) {
		case bool:
			b.WriteString(strconv.FormatBool(v))
		case string:
			writeString(&b, v)
		case int:
			b.WriteString(strconv.Itoa(v))
		case int64:
			b.WriteString(strconv.FormatInt(v, 10))
		default:
			b.WriteString("null")
		}
	}
	b.WriteByte('}')
	return b.Bytes()
}

// Error 编码 {"error": ..., "reason": ...} 形式的错误体
func Error(errValue interface{}, reason string) []byte {
	return Object(Field{"error", errValue}, Field{"reason", reason})
}

const hex = "0123456789abcdef"

func writeString(b *bytes.Buffer, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if r >= ' ' && r <= '~' {
				b.WriteRune(r)
				continue
			}
			if r > 0xffff {
				r -= 0x10000
				writeUnit(b, 0xd800|(r>>10)&0x3ff)
				writeUnit(b, 0xdc00|r&0x3ff)
				continue
			}
			writeUnit(b, r)
		}
	}
	b.WriteByte('"')
}

func writeUnit(b *bytes.Buffer, u rune) {
	b.WriteString(`\u`)
	b.WriteByte(hex[u>>12&0xf])
	b.WriteByte(hex[u>>8&0xf])
	b.WriteByte(hex[u>>4&0xf])
	b.WriteByte(hex[u&0xf])
}
