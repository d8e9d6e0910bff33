package publisher

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
)

var (
	olRe      = regexp.MustCompile(`(?s)<ol[^>]*>(.*?)</ol>`)
	ulRe      = regexp.MustCompile(`(?s)<ul[^>]*>(.*?)</ul>`)
	liRe      = regexp.MustCompile(`(?s)<li[^>]*>(.*?)</li>`)
	headingRe = regexp.MustCompile(`(?s)<h[1-6][^>]*>(.*?)</h[1-6]>`)
	blockRe   = regexp.MustCompile(`(?s)</?(p|pre|blockquote)[^>]*>`)
	brRe      = regexp.MustCompile(`<br\s*/?>`)
	tagRe     = regexp.MustCompile(`<[^>]+>`)
	blankRe   = regexp.MustCompile(`\n{3,}`)
)

func mdToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// LinkedIn 不渲染 Markdown：列表展开为符号行，标题转为普通段落，其余标签去掉。
func flattenLists(h string) string {
	h = olRe.ReplaceAllStringFunc(h, func(block string) string {
		items := liRe.FindAllStringSubmatch(block, -1)
		lines := make([]string, 0, len(items))
		for i, item := range items {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, strings.TrimSpace(item[1])))
		}
		return "<p>" + strings.Join(lines, "<br>") + "</p>"
	})
	return ulRe.ReplaceAllStringFunc(h, func(block string) string {
		items := liRe.FindAllStringSubmatch(block, -1)
		lines := make([]string, 0, len(items))
		for _, item := range items {
			lines = append(lines, "• "+strings.TrimSpace(item[1]))
		}
		return "<p>" + strings.Join(lines, "<br>") + "</p>"
	})
}

func htmlToText(h string) string {
	h = headingRe.ReplaceAllString(h, "<p>$1</p>")
	h = flattenLists(h)
	h = brRe.ReplaceAllString(h, "\n")
	h = blockRe.ReplaceAllStringFunc(h, func(tag string) string {
		if strings.HasPrefix(tag, "</") {
			return "\n\n"
		}
		return ""
	})
	h = tagRe.ReplaceAllString(h, "")
	h = html.UnescapeString(h)

	lines := strings.Split(h, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	h = strings.Join(lines, "\n")
	return strings.TrimSpace(blankRe.ReplaceAllString(h, "\n\n"))
}

// RenderPlainText turns post markdown into the plain text the platform shows.
// If rendering fails or would exceed max characters the stored content is sent as is.
func RenderPlainText(content string, max int) string {
	out, err := mdToHTML(content)
	if err != nil {
		return content
	}
	text := htmlToText(out)
	if text == "" || (max > 0 && utf8.RuneCountInString(text) > max) {
		return content
	}
	return text
}
