package crawler

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// noiseSelector matches the elements stripped before text and markdown
// extraction. Link and metadata extraction operate on the full document.
const noiseSelector = "script, style, nav, footer, header, aside, form, iframe"

const untitled = "Untitled"

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// Extractor turns one page's raw markup into structured content. It parses the
// markup twice: once in full for titles, links, and metadata, and once with
// noise elements removed for text and markdown conversion.
type Extractor struct {
	raw        string
	base       *url.URL
	baseDomain string
	doc        *goquery.Document
	content    *goquery.Document
}

// NewExtractor parses raw markup against a base URL used for resolving
// relative references.
func NewExtractor(rawHTML, baseURL string) (*Extractor, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	return &Extractor{
		raw:        rawHTML,
		base:       base,
		baseDomain: RegistrableDomain(baseURL),
		doc:        doc,
	}, nil
}

// Title returns the document title, falling back to the first top-level
// heading, falling back to "Untitled".
func (e *Extractor) Title() string {
	if t := strings.TrimSpace(e.doc.Find("title").First().Text()); t != "" {
		return t
	}
	if t := collapseWhitespace(e.doc.Find("h1").First().Text()); t != "" {
		return t
	}
	return untitled
}

// Text returns the page's plain text with noise elements removed and
// whitespace collapsed.
func (e *Extractor) Text() string {
	area := e.contentArea()
	if len(area) == 0 {
		return ""
	}
	var parts []string
	for _, n := range area {
		walkTextNodes(n, func(s string) {
			if t := strings.TrimSpace(s); t != "" {
				parts = append(parts, t)
			}
		})
	}
	return collapseWhitespace(strings.Join(parts, " "))
}

// Markdown converts the content subtree (an article or main region when
// present, else the body) into markdown using a fixed per-tag mapping.
func (e *Extractor) Markdown() string {
	area := e.contentArea()
	if len(area) == 0 {
		return ""
	}
	var b strings.Builder
	for _, n := range area {
		b.WriteString(e.renderMarkdown(n))
	}
	md := excessNewlines.ReplaceAllString(b.String(), "\n\n")
	lines := strings.Split(md, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Links returns every anchor href resolved to an absolute http(s) URL, sorted
// by descending link score (ties keep document order). When restrictDomain is
// set, links whose registrable domain differs from the base URL's are dropped.
// A single malformed href never aborts extraction.
func (e *Extractor) Links(query string, restrictDomain bool) []string {
	type scored struct {
		score int
		href  string
	}
	var links []scored
	e.doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		abs, err := e.resolve(href)
		if err != nil {
			return
		}
		parsed, err := url.Parse(abs)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return
		}
		if restrictDomain && e.baseDomain != "" && RegistrableDomain(abs) != e.baseDomain {
			return
		}
		links = append(links, scored{score: ScoreLink(abs, query), href: abs})
	})
	// Insertion sort keeps equal scores in document order.
	for i := 1; i < len(links); i++ {
		for j := i; j > 0 && links[j].score > links[j-1].score; j-- {
			links[j], links[j-1] = links[j-1], links[j]
		}
	}
	out := make([]string, len(links))
	for i, l := range links {
		out[i] = l.href
	}
	return out
}

// MetaTags returns a lowercased name/property/http-equiv -> content map of
// every meta tag carrying both attributes.
func (e *Extractor) MetaTags() map[string]string {
	meta := make(map[string]string)
	e.doc.Find("meta").Each(func(_ int, sel *goquery.Selection) {
		name, ok := sel.Attr("name")
		if !ok || name == "" {
			name, _ = sel.Attr("property")
		}
		if name == "" {
			name, _ = sel.Attr("http-equiv")
		}
		content, _ := sel.Attr("content")
		if name != "" && content != "" {
			meta[strings.ToLower(name)] = content
		}
	})
	return meta
}

// Description prefers the description meta tag, falling back to og:description.
func (e *Extractor) Description() string {
	meta := e.MetaTags()
	if d := meta["description"]; d != "" {
		return d
	}
	return meta["og:description"]
}

// MetaTitle prefers og:title over the document title.
func (e *Extractor) MetaTitle() string {
	if t := e.MetaTags()["og:title"]; t != "" {
		return t
	}
	return e.Title()
}

// Language returns the declared document language, defaulting to "en".
func (e *Extractor) Language() string {
	if lang, ok := e.doc.Find("html[lang]").First().Attr("lang"); ok && lang != "" {
		return lang
	}
	return "en"
}

// Favicon resolves the declared icon link, defaulting to /favicon.ico on the
// base host.
func (e *Extractor) Favicon() string {
	var favicon string
	e.doc.Find("link[rel]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		rel, _ := sel.Attr("rel")
		rel = strings.ToLower(rel)
		if !strings.Contains(rel, "icon") && !strings.Contains(rel, "shortcut") {
			return true
		}
		href, _ := sel.Attr("href")
		if abs, err := e.resolve(href); err == nil {
			favicon = abs
			return false
		}
		return true
	})
	if favicon != "" {
		return favicon
	}
	if abs, err := e.resolve("/favicon.ico"); err == nil {
		return abs
	}
	return ""
}

// Images returns every img src resolved to an absolute URL with its alt text.
func (e *Extractor) Images() []ImageRef {
	var images []ImageRef
	e.doc.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		abs, err := e.resolve(src)
		if err != nil {
			return
		}
		alt, _ := sel.Attr("alt")
		images = append(images, ImageRef{Src: abs, Alt: alt})
	})
	return images
}

// LinkRefs returns every anchor with its resolved href and visible text.
func (e *Extractor) LinkRefs() []LinkRef {
	var links []LinkRef
	e.doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		abs, err := e.resolve(href)
		if err != nil {
			return
		}
		links = append(links, LinkRef{Href: abs, Text: collapseWhitespace(sel.Text())})
	})
	return links
}

func (e *Extractor) resolve(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty href")
	}
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	return e.base.ResolveReference(parsed).String(), nil
}

// contentArea returns the root nodes for text/markdown extraction: the first
// article or main region of the noise-stripped document, else its body, else
// the document root.
func (e *Extractor) contentArea() []*html.Node {
	if e.content == nil {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(e.raw))
		if err != nil {
			return nil
		}
		doc.Find(noiseSelector).Remove()
		e.content = doc
	}
	if sel := e.content.Find("article, main").First(); sel.Length() > 0 {
		return sel.Nodes
	}
	if sel := e.content.Find("body").First(); sel.Length() > 0 {
		return sel.Nodes
	}
	return e.content.Selection.Nodes
}

// renderMarkdown folds a DOM subtree into markdown with an explicit stack so
// adversarially nested markup cannot exhaust the call stack.
func (e *Extractor) renderMarkdown(root *html.Node) string {
	type frame struct {
		node  *html.Node
		next  *html.Node
		parts []string
	}
	stack := []*frame{{node: root, next: root.FirstChild}}
	var result string
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next != nil {
			child := top.next
			top.next = child.NextSibling
			switch child.Type {
			case html.TextNode:
				top.parts = append(top.parts, strings.TrimSpace(child.Data))
			case html.ElementNode:
				stack = append(stack, &frame{node: child, next: child.FirstChild})
			}
			continue
		}
		stack = stack[:len(stack)-1]
		rendered := e.renderTag(top.node, strings.Join(top.parts, ""))
		if len(stack) == 0 {
			result = rendered
			continue
		}
		parent := stack[len(stack)-1]
		parent.parts = append(parent.parts, rendered)
	}
	return result
}

// renderTag maps one element to its markdown form given its already-rendered
// children. Unlisted elements pass their children through unchanged.
func (e *Extractor) renderTag(n *html.Node, children string) string {
	if n.Type != html.ElementNode {
		return children
	}
	switch n.Data {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		text := subtreeText(n)
		if text == "" {
			return ""
		}
		level := int(n.Data[1] - '0')
		return "\n" + strings.Repeat("#", level) + " " + text + "\n\n"
	case "p":
		if text := subtreeText(n); text != "" {
			return text + "\n\n"
		}
		return ""
	case "a":
		text := subtreeText(n)
		href := attrValue(n, "href")
		if href == "" {
			return text
		}
		abs, err := e.resolve(href)
		if err != nil || text == "" {
			return ""
		}
		return "[" + text + "](" + abs + ")"
	case "img":
		src := attrValue(n, "src")
		if src == "" {
			return ""
		}
		abs, err := e.resolve(src)
		if err != nil {
			return ""
		}
		alt := attrValue(n, "alt")
		if alt == "" {
			alt = "Image"
		}
		return "![" + alt + "](" + abs + ")\n"
	case "strong", "b":
		if text := subtreeText(n); text != "" {
			return "**" + text + "**"
		}
		return ""
	case "em", "i":
		if text := subtreeText(n); text != "" {
			return "*" + text + "*"
		}
		return ""
	case "li":
		if text := subtreeText(n); text != "" {
			return "- " + text + "\n"
		}
		return ""
	case "br":
		return "\n"
	case "hr":
		return "\n---\n\n"
	case "ul", "ol":
		return "\n" + children + "\n"
	default:
		return children
	}
}

// subtreeText concatenates the stripped text fragments under a node.
func subtreeText(n *html.Node) string {
	var b strings.Builder
	walkTextNodes(n, func(s string) {
		b.WriteString(strings.TrimSpace(s))
	})
	return b.String()
}

// walkTextNodes visits every text node under n in document order without
// recursion.
func walkTextNodes(n *html.Node, fn func(string)) {
	stack := []*html.Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur.Type == html.TextNode {
			fn(cur.Data)
			continue
		}
		for c := cur.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, c)
		}
	}
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
