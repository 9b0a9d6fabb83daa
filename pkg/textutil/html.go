package textutil

import (
	"strings"

	"golang.org/x/net/html"
)

// PlainText reduces an HTML fragment, such as a job posting copied from a
// job board, to plain text.
func PlainText(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.TrimSpace(strings.ToValidUTF8(s, ""))
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}
	return normalizeLines(extractText(doc))
}

var blockElements = map[string]bool{
	"p": true, "br": true, "div": true, "li": true, "ul": true, "ol": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "section": true,
}

func extractText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			buf.WriteString(node.Data)
		case html.ElementNode:
			switch node.Data {
			case "script", "style", "head":
				return
			case "li":
				buf.WriteString("\n- ")
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode && blockElements[node.Data] {
			buf.WriteString("\n")
		}
	}
	walk(n)
	return buf.String()
}

func normalizeLines(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" || line == "-" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
