package audio

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedBitDepth 位深或编码不在支持范围内（16-bit int、32-bit int、32-bit float）。
	ErrUnsupportedBitDepth = errors.New("不支持的位深")
	// ErrMissingData 找不到 data 块。
	ErrMissingData = errors.New("缺少 data 块")
	// ErrTruncatedHeader 文件头不完整。
	ErrTruncatedHeader = errors.New("文件头不完整")
	// ErrEmptyPayload 音频数据为空。
	ErrEmptyPayload = errors.New("音频数据为空")
	// ErrNoConverter 没有可用的外部转码器。
	ErrNoConverter = errors.New("没有可用的转码器")
	// ErrNotMP3 数据不是 MP3 流。
	ErrNotMP3 = errors.New("不是 MP3 数据")
)

// DecodeError 表示所有解码策略都失败。
// Reason 是 strict reader 的错误（对外报告的主因），Attempts 记录每一步的失败，便于诊断。
type DecodeError struct {
	Path     string
	Reason   error
	Attempts []error
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "解码 %s 失败: %v", e.Path, e.Reason)
	if len(e.Attempts) > 1 {
		b.WriteString(" (尝试: ")
		for i, a := range e.Attempts {
			if i > 0 {
				b.WriteString("; ")
			}
			b.WriteString(a.Error())
		}
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap 支持 errors.Is / errors.As 匹配任一步骤的错误。
func (e *DecodeError) Unwrap() []error {
	if len(e.Attempts) == 0 {
		return []error{e.Reason}
	}
	out := make([]error, 0, len(e.Attempts)+1)
	out = append(out, e.Reason)
	return append(out, e.Attempts...)
}
