package crawler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestExtractor(t *testing.T, html, base string) *Extractor {
	t.Helper()
	e, err := NewExtractor(html, base)
	require.NoError(t, err)
	return e
}

func TestExtractorTitle(t *testing.T) {
	t.Run("title element wins", func(t *testing.T) {
		e := newTestExtractor(t, "<html><head><title> Hello </title></head><body><h1>Other</h1></body></html>", "https://a.com")
		require.Equal(t, "Hello", e.Title())
	})

	t.Run("falls back to first heading", func(t *testing.T) {
		e := newTestExtractor(t, "<html><body><h1>Heading Title</h1></body></html>", "https://a.com")
		require.Equal(t, "Heading Title", e.Title())
	})

	t.Run("falls back to Untitled", func(t *testing.T) {
		e := newTestExtractor(t, "<html><body><p>no title here</p></body></html>", "https://a.com")
		require.Equal(t, "Untitled", e.Title())
	})
}

func TestExtractorText(t *testing.T) {
	e := newTestExtractor(t, `<html><body>
		<nav>menu items</nav>
		<script>var x = 1;</script>
		<main><p>First   paragraph.</p><p>Second paragraph.</p></main>
		<footer>copyright</footer>
	</body></html>`, "https://a.com")
	text := e.Text()
	require.Equal(t, "First paragraph. Second paragraph.", text)
	require.NotContains(t, text, "menu items")
	require.NotContains(t, text, "var x")
	require.NotContains(t, text, "copyright")
}

func TestExtractorMarkdown(t *testing.T) {
	t.Run("heading converts to hash line", func(t *testing.T) {
		e := newTestExtractor(t, "<html><body><h2>Title</h2></body></html>", "https://a.com")
		require.Equal(t, "## Title", e.Markdown())
	})

	t.Run("anchor resolves against base", func(t *testing.T) {
		e := newTestExtractor(t, `<html><body><p>see</p><a href="/x">t</a></body></html>`, "https://a.com")
		require.Contains(t, e.Markdown(), "[t](https://a.com/x)")
	})

	t.Run("image with and without alt", func(t *testing.T) {
		e := newTestExtractor(t, `<html><body><img src="/pic.png" alt="logo"><img src="/raw.png"></body></html>`, "https://a.com")
		md := e.Markdown()
		require.Contains(t, md, "![logo](https://a.com/pic.png)")
		require.Contains(t, md, "![Image](https://a.com/raw.png)")
	})

	t.Run("emphasis and lists", func(t *testing.T) {
		e := newTestExtractor(t, `<html><body><div><strong>bold</strong> and <em>ital</em></div><ul><li>one</li><li>two</li></ul></body></html>`, "https://a.com")
		md := e.Markdown()
		require.Contains(t, md, "**bold**")
		require.Contains(t, md, "*ital*")
		require.Contains(t, md, "- one\n- two")
	})

	t.Run("paragraphs flatten inline markup", func(t *testing.T) {
		// Paragraphs render as their plain subtree text, so emphasis inside
		// a p carries no markers.
		e := newTestExtractor(t, `<html><body><p><strong>bold</strong> and <em>ital</em></p></body></html>`, "https://a.com")
		md := e.Markdown()
		require.Contains(t, md, "boldandital")
		require.NotContains(t, md, "**")
	})

	t.Run("prefers article region", func(t *testing.T) {
		e := newTestExtractor(t, `<html><body><div><p>outside</p></div><article><p>inside</p></article></body></html>`, "https://a.com")
		md := e.Markdown()
		require.Contains(t, md, "inside")
		require.NotContains(t, md, "outside")
	})

	t.Run("collapses excess newlines and trims", func(t *testing.T) {
		e := newTestExtractor(t, "<html><body><h1>A</h1><hr><h2>B</h2></body></html>", "https://a.com")
		md := e.Markdown()
		require.NotContains(t, md, "\n\n\n")
		require.Equal(t, md, strings.TrimSpace(md))
	})

	t.Run("deep nesting does not overflow", func(t *testing.T) {
		var b strings.Builder
		b.WriteString("<html><body>")
		for i := 0; i < 5000; i++ {
			b.WriteString("<div>")
		}
		b.WriteString("<p>deep</p>")
		for i := 0; i < 5000; i++ {
			b.WriteString("</div>")
		}
		b.WriteString("</body></html>")
		e := newTestExtractor(t, b.String(), "https://a.com")
		require.Contains(t, e.Markdown(), "deep")
	})
}

func TestExtractorLinks(t *testing.T) {
	t.Run("resolves and orders by score", func(t *testing.T) {
		e := newTestExtractor(t, `<html><body>
			<a href="/about">about</a>
			<a href="/pricing-widgets">pricing</a>
			<a href="mailto:x@a.com">mail</a>
		</body></html>`, "https://a.com")
		links := e.Links("widgets", false)
		require.Equal(t, []string{"https://a.com/pricing-widgets", "https://a.com/about"}, links)
	})

	t.Run("equal scores keep document order", func(t *testing.T) {
		e := newTestExtractor(t, `<html><body><a href="/one">1</a><a href="/two">2</a><a href="/three">3</a></body></html>`, "https://a.com")
		require.Equal(t,
			[]string{"https://a.com/one", "https://a.com/two", "https://a.com/three"},
			e.Links("", false))
	})

	t.Run("restricts to registrable domain", func(t *testing.T) {
		e := newTestExtractor(t, `<html><body>
			<a href="https://sub.a.com/inside">in</a>
			<a href="https://other.org/outside">out</a>
		</body></html>`, "https://a.com")
		links := e.Links("", true)
		require.Equal(t, []string{"https://sub.a.com/inside"}, links)
	})

	t.Run("includes navigation links", func(t *testing.T) {
		// Noise stripping applies to text and markdown only; the link set
		// covers the whole document.
		e := newTestExtractor(t, `<html><body><nav><a href="/docs">docs</a></nav></body></html>`, "https://a.com")
		require.Equal(t, []string{"https://a.com/docs"}, e.Links("", false))
	})
}

func TestExtractorMetadata(t *testing.T) {
	page := `<html lang="de"><head>
		<title>Base Title</title>
		<meta name="description" content="plain desc">
		<meta property="og:title" content="OG Title">
		<link rel="shortcut icon" href="/fav.png">
	</head><body>
		<img src="/a.png" alt="first">
		<a href="/go">go here</a>
	</body></html>`
	e := newTestExtractor(t, page, "https://a.com")

	require.Equal(t, "plain desc", e.Description())
	require.Equal(t, "OG Title", e.MetaTitle())
	require.Equal(t, "de", e.Language())
	require.Equal(t, "https://a.com/fav.png", e.Favicon())
	require.Equal(t, []ImageRef{{Src: "https://a.com/a.png", Alt: "first"}}, e.Images())
	require.Equal(t, []LinkRef{{Href: "https://a.com/go", Text: "go here"}}, e.LinkRefs())
}

func TestExtractorMetadataDefaults(t *testing.T) {
	e := newTestExtractor(t, "<html><head><meta property=\"og:description\" content=\"og desc\"></head><body></body></html>", "https://a.com")
	require.Equal(t, "og desc", e.Description())
	require.Equal(t, "en", e.Language())
	require.Equal(t, "https://a.com/favicon.ico", e.Favicon())
}
