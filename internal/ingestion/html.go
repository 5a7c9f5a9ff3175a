package ingestion

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	htmlTagPattern    = regexp.MustCompile(`(?i)<(p|div|br|ul|ol|li|h[1-6]|span|strong|em|b|i|a|table|section)\b[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// LooksLikeHTML reports whether a scraped description contains markup
func LooksLikeHTML(s string) bool {
	return htmlTagPattern.MatchString(s)
}

// HTMLToText converts an HTML job description into plain text.
// Headings become markdown headings and list items become "- " bullets so that
// CleanText can keep the structure.
func HTMLToText(content string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, noscript, iframe, svg, form, button").Remove()

	var sb strings.Builder
	doc.Find("body").Each(func(_ int, body *goquery.Selection) {
		writeNode(&sb, body)
	})
	lines := strings.Split(sb.String(), "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return CleanText(strings.Join(lines, "\n")), nil
}

func writeNode(sb *strings.Builder, s *goquery.Selection) {
	s.Contents().Each(func(_ int, child *goquery.Selection) {
		node := child.Get(0)
		if node.Type == html.TextNode {
			sb.WriteString(whitespacePattern.ReplaceAllString(node.Data, " "))
			return
		}
		if node.Type != html.ElementNode {
			return
		}

		switch tag := goquery.NodeName(child); tag {
		case "br":
			sb.WriteString("\n")
		case "h1", "h2", "h3", "h4", "h5", "h6":
			level := int(tag[1] - '0')
			sb.WriteString("\n\n" + strings.Repeat("#", level) + " ")
			sb.WriteString(strings.TrimSpace(child.Text()))
			sb.WriteString("\n")
		case "li":
			sb.WriteString("\n- ")
			sb.WriteString(strings.Join(strings.Fields(child.Text()), " "))
			sb.WriteString("\n")
		case "p", "div", "section", "article", "ul", "ol", "table", "tr":
			sb.WriteString("\n")
			writeNode(sb, child)
			sb.WriteString("\n")
		default:
			writeNode(sb, child)
		}
	})
}

// CleanDescription normalizes a scraped description, converting HTML when present
func CleanDescription(content string) string {
	if LooksLikeHTML(content) {
		if text, err := HTMLToText(content); err == nil {
			return text
		}
	}
	return CleanText(content)
}
