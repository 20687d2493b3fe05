package task

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PlainText 将审核人富文本反馈（HTML片段）转换为纯文本，用于审计日志
// 解析失败时原样返回
func PlainText(feedback string) string {
	if !strings.ContainsAny(feedback, "<&") {
		return strings.TrimSpace(feedback)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(feedback))
	if err != nil {
		return strings.TrimSpace(feedback)
	}
	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, li, div").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	return collapseLines(doc.Text())
}

func collapseLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
