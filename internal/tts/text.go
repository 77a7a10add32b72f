package tts

import (
	"regexp"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// symbolsTR 是朗读前替换的符号表（土耳其语读法）。值为空字符串表示删除该符号。
var symbolsTR = []string{
	"»", "", "«", "",
	"→", " sağ ok ", "←", " sol ok ",
	"↑", " yukarı ok ", "↓", " aşağı ok ",
	"▲", " yukarı ok ", "▼", " aşağı ok ",
	"•", ", ", "●", ", ", "○", ", ",
	"★", " yıldız ", "☆", " yıldız ",
	"✓", " onay ", "✗", " iptal ",
	"×", " çarpı ", "÷", " bölü ",
	"±", " artı eksi ", "°", " derece ",
	"€", " euro ", "$", " dolar ",
	"&", " ve ", "%", " yüzde ", "@", " et ",
}

var symbolsEN = []string{
	"»", "", "«", "",
	"→", " right arrow ", "←", " left arrow ",
	"↑", " up arrow ", "↓", " down arrow ",
	"▲", " up arrow ", "▼", " down arrow ",
	"•", ", ", "●", ", ", "○", ", ",
	"★", " star ", "☆", " star ",
	"✓", " check ", "✗", " cross ",
	"×", " times ", "÷", " divided by ",
	"±", " plus minus ", "°", " degrees ",
	"€", " euro ", "$", " dollar ",
	"&", " and ", "%", " percent ", "@", " at ",
}

var replacers = map[string]*strings.Replacer{
	"tr": strings.NewReplacer(symbolsTR...),
	"en": strings.NewReplacer(symbolsEN...),
}

// CleanText 把符号替换成可朗读的词，合并连续空白并去掉首尾空白。
// 未知语言按土耳其语处理。
func CleanText(text, lang string) string {
	r, ok := replacers[strings.ToLower(lang)]
	if !ok {
		r = replacers["tr"]
	}
	out := r.Replace(text)
	out = whitespaceRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}
