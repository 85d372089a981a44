package links

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/lueurxax/procurement-monitor/internal/core/textnorm"
)

// ExtractText turns an HTML document into plain text. Readability runs first;
// when it finds no article the page text is taken with scripts and styles removed.
// It returns "" when nothing can be extracted.
func ExtractText(html, rawURL string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}

	if text := readableText(html, rawURL); text != "" {
		return text
	}

	return documentText(html)
}

func readableText(html, rawURL string) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()

	u, err := url.Parse(rawURL)
	if err != nil || u == nil {
		u = &url.URL{}
	}

	article, err := readability.FromReader(bytes.NewReader([]byte(html)), u)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(article.TextContent)
}

func documentText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find("script, style, noscript").Remove()

	return textnorm.Normalize(doc.Text())
}
