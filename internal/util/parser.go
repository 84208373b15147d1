package util

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// LooksLikeHTML reports whether a body that should be CSV is actually an HTML page.
// The weather endpoint answers bad parameters with a 200 and an HTML error page.
func LooksLikeHTML(body []byte) bool {
	head := bytes.TrimSpace(StripBOM(body))
	if len(head) > 512 {
		head = head[:512]
	}
	lower := strings.ToLower(string(head))
	return strings.HasPrefix(lower, "<!doctype html") || strings.HasPrefix(lower, "<html") ||
		strings.Contains(lower, "<head>") || strings.Contains(lower, "<body")
}

// HTMLTitle returns the trimmed text of the first <title> element, or "" if there is none.
func HTMLTitle(body []byte) string {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	var title string
	var walk func(*html.Node) bool
	walk = func(nd *html.Node) bool {
		if nd.Type == html.ElementNode && nd.Data == "title" {
			var b strings.Builder
			for c := nd.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.TextNode {
					b.WriteString(c.Data)
				}
			}
			title = strings.Join(strings.Fields(b.String()), " ")
			return true
		}
		for c := nd.FirstChild; c != nil; c = c.NextSibling {
			if walk(c) {
				return true
			}
		}
		return false
	}
	walk(root)
	return title
}
