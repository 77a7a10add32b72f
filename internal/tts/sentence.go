package tts

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxSegmentChars 是合并分段时每段的默认最大字符数。
const DefaultMaxSegmentChars = 100

var sentenceEnders = []rune{'。', '！', '？', '；', '.', '!', '?', '\n'}

// ExtractSentence 尝试从文本中提取第一个完整句子。
// 返回句子、剩余文本以及是否找到句末标点。
func ExtractSentence(text string) (string, string, bool) {
	for i, r := range text {
		for _, ender := range sentenceEnders {
			if r == ender {
				splitAt := i + utf8.RuneLen(r)
				return text[:splitAt], text[splitAt:], true
			}
		}
	}
	return "", text, false
}

// MergeSentences 将文本按句分割后合并为大段，每段不超过 maxChars 个字符。
// 单个句子超过 maxChars 时独占一段，不会被截断。
func MergeSentences(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxSegmentChars
	}

	var chunks []string
	var current strings.Builder
	currentLen := 0
	remaining := text

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
		currentLen = 0
	}
	add := func(s string) {
		n := utf8.RuneCountInString(s)
		if currentLen > 0 && currentLen+n+1 > maxChars {
			flush()
		}
		if currentLen > 0 {
			current.WriteByte(' ')
			currentLen++
		}
		current.WriteString(s)
		currentLen += n
	}

	for {
		sentence, rest, found := ExtractSentence(remaining)
		if !found {
			if r := strings.TrimSpace(remaining); r != "" {
				add(r)
			}
			break
		}
		remaining = rest
		if s := strings.TrimSpace(sentence); s != "" {
			add(s)
		}
	}
	flush()
	return chunks
}
