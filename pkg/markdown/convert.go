// Package markdown converts the HTML fragment of a rendered chat message
// into markdown text. The conversion is a pure fold over the node tree:
// the same fragment always yields the same document.
package markdown

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

var codeLanguageRe = regexp.MustCompile(`language-(\w+)`)

// Convert renders an HTML fragment as markdown. The fragment is typically
// the innerHTML of a message container; unknown elements pass their
// children through unchanged.
func Convert(fragment string) (string, error) {
	root, err := parseFragment(fragment)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(render(c, 0))
	}
	return strings.TrimSpace(b.String()), nil
}

// parseFragment parses a fragment and returns the body node html.Parse
// wraps it in.
func parseFragment(fragment string) (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return nil, err
	}
	if body := findElement(doc, "body"); body != nil {
		return body, nil
	}
	return doc, nil
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// render converts one node. depth is the list nesting level, passed down
// explicitly rather than inferred from ancestry.
func render(n *html.Node, depth int) string {
	switch n.Type {
	case html.TextNode:
		return n.Data
	case html.ElementNode:
		// handled below
	default:
		return ""
	}

	children := renderChildren(n, depth)

	switch n.Data {
	case "p":
		return children + "\n\n"
	case "br":
		return "\n"
	case "strong", "b":
		return "**" + children + "**"
	case "em", "i":
		return "*" + children + "*"
	case "code":
		if n.Parent != nil && n.Parent.Type == html.ElementNode && n.Parent.Data == "pre" {
			return children
		}
		return "`" + children + "`"
	case "pre":
		return renderCodeBlock(n, children)
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(n.Data[1] - '0')
		return strings.Repeat("#", level) + " " + children + "\n\n"
	case "ul":
		return renderList(n, depth, false)
	case "ol":
		return renderList(n, depth, true)
	case "li":
		return children
	case "a":
		return "[" + children + "](" + attr(n, "href") + ")"
	case "blockquote":
		return "> " + strings.ReplaceAll(strings.TrimSpace(children), "\n", "\n> ") + "\n\n"
	case "hr":
		return "---\n\n"
	case "table":
		return children + "\n"
	case "thead", "tbody":
		return children
	case "tr":
		return renderTableRow(n, depth)
	case "th", "td":
		return children
	case "img":
		alt := attr(n, "alt")
		if alt == "" {
			alt = "image"
		}
		return "![" + alt + "](" + attr(n, "src") + ")"
	default:
		// span, div and anything unrecognized are transparent.
		return children
	}
}

func renderChildren(n *html.Node, depth int) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(render(c, depth))
	}
	return b.String()
}

// renderCodeBlock fences a pre element. The language comes from a
// language-<name> class on the inner code element; the content is the
// code element's raw text, not re-converted.
func renderCodeBlock(n *html.Node, children string) string {
	lang := ""
	content := children
	if code := findElement(n, "code"); code != nil {
		if m := codeLanguageRe.FindStringSubmatch(attr(code, "class")); m != nil {
			lang = m[1]
		}
		content = rawText(code)
	}
	return "```" + lang + "\n" + content + "\n```\n\n"
}

// renderList renders direct li children with a bullet or ordinal prefix,
// indented two spaces per nesting level. Ordinals restart at 1 for every
// list element.
func renderList(n *html.Node, depth int, ordered bool) string {
	indent := strings.Repeat("  ", depth)
	var b strings.Builder
	if depth > 0 {
		// A nested list starts on its own line under the parent item.
		b.WriteString("\n")
	}
	num := 1
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != "li" {
			continue
		}
		prefix := "- "
		if ordered {
			prefix = strconv.Itoa(num) + ". "
			num++
		}
		b.WriteString(indent + prefix + strings.TrimSpace(render(c, depth+1)) + "\n")
	}
	if depth == 0 {
		b.WriteString("\n")
	}
	return b.String()
}

func renderTableRow(n *html.Node, depth int) string {
	var cells []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || (c.Data != "td" && c.Data != "th") {
			continue
		}
		cells = append(cells, strings.TrimSpace(render(c, depth)))
	}
	return "| " + strings.Join(cells, " | ") + " |\n"
}

// rawText concatenates all descendant text nodes verbatim.
func rawText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
