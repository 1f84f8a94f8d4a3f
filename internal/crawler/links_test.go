package crawler

import (
	"slices"
	"testing"
)

func mustScope(t *testing.T, cfg ScopeConfig) *Scope {
	t.Helper()
	scope, err := NewScope(cfg, nil)
	if err != nil {
		t.Fatalf("NewScope failed: %v", err)
	}
	return scope
}

func TestExtractHTMLLinks(t *testing.T) {
	t.Parallel()

	scope := mustScope(t, ScopeConfig{RootHost: "example.com", MaxDepth: -1})
	body := []byte(`<!doctype html><html><head>
		<link rel="stylesheet" href="/style.css">
		<link rel="alternate" href="/feed/">
		<script src="/app.js"></script>
	</head><body>
		<a href="/about/">  About
			us </a>
		<a href="/about/#team">Team</a>
		<a href="https://partner.example.org/" title="Partner"></a>
		<a href="/contact/"><img src="/logo.png" alt="Contact"></a>
		<a href="mailto:hello@example.com">Mail</a>
		<a href="http://exa mple.com/">Broken</a>
		<img srcset="/small.jpg 320w, /large.jpg 800w" alt="Hero image">
		<a href="/files/brochure.pdf">Brochure</a>
	</body></html>`)

	var links []Link
	for link := range Extract("https://www.example.com/", body, "text/html; charset=utf-8", scope, true) {
		links = append(links, link)
	}

	byTarget := make(map[string]Link, len(links))
	for _, l := range links {
		byTarget[l.Target] = l
	}
	expect := map[string]LinkKind{
		"https://www.example.com/about/":             KindInternalPage,
		"https://partner.example.org/":               KindExternal,
		"https://www.example.com/contact/":           KindInternalPage,
		"https://www.example.com/style.css":          KindInternalAsset,
		"https://www.example.com/app.js":             KindInternalAsset,
		"https://www.example.com/logo.png":           KindInternalAsset,
		"https://www.example.com/small.jpg":          KindInternalAsset,
		"https://www.example.com/files/brochure.pdf": KindInternalAsset,
	}
	for target, kind := range expect {
		l, ok := byTarget[target]
		if !ok {
			t.Fatalf("missing link %s in %+v", target, links)
		}
		if l.Kind != kind {
			t.Fatalf("link %s: got kind %s want %s", target, l.Kind, kind)
		}
		if l.Source != "https://www.example.com/" {
			t.Fatalf("link %s: unexpected source %q", target, l.Source)
		}
	}
	if _, ok := byTarget["https://www.example.com/feed/"]; ok {
		t.Fatal("alternate links should not be extracted")
	}
	if got := byTarget["https://www.example.com/about/"].AnchorText; got != "About us" {
		t.Fatalf("unexpected anchor text %q", got)
	}
	if got := byTarget["https://partner.example.org/"].AnchorText; got != "Partner" {
		t.Fatalf("expected title fallback, got %q", got)
	}
	if got := byTarget["https://www.example.com/contact/"].AnchorText; got != "Contact" {
		t.Fatalf("expected image alt fallback, got %q", got)
	}
	if got := byTarget["https://www.example.com/small.jpg"].AnchorText; got != "Hero image" {
		t.Fatalf("expected alt text for image, got %q", got)
	}
	broken, ok := byTarget["http://exa mple.com/"]
	if !ok || broken.Err == nil {
		t.Fatalf("expected malformed link to be yielded with an error, got %+v", broken)
	}

	count := 0
	for _, l := range links {
		if l.Target == "https://www.example.com/about/" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected duplicate targets to be collapsed, got %d", count)
	}
}

func TestExtractSkipsAssetsWhenDisabled(t *testing.T) {
	t.Parallel()

	scope := mustScope(t, ScopeConfig{RootHost: "example.com"})
	body := []byte(`<html><body><img src="/a.png"><script src="/b.js"></script><a href="/c">C</a></body></html>`)

	var targets []string
	for link := range Extract("https://example.com/", body, "", scope, false) {
		targets = append(targets, link.Target)
	}
	if !slices.Equal(targets, []string{"https://example.com/c"}) {
		t.Fatalf("unexpected targets: %v", targets)
	}
}

func TestExtractHonoursBaseHref(t *testing.T) {
	t.Parallel()

	scope := mustScope(t, ScopeConfig{RootHost: "example.com"})
	body := []byte(`<html><head><base href="https://example.com/docs/"></head><body><a href="intro.html">Intro</a></body></html>`)

	for link := range Extract("https://example.com/", body, "text/html", scope, false) {
		if link.Target != "https://example.com/docs/intro.html" {
			t.Fatalf("expected base-relative target, got %s", link.Target)
		}
		return
	}
	t.Fatal("no link extracted")
}

func TestExtractStopsWhenConsumerBreaks(t *testing.T) {
	t.Parallel()

	scope := mustScope(t, ScopeConfig{RootHost: "example.com"})
	body := []byte(`<a href="/1">1</a><a href="/2">2</a><a href="/3">3</a>`)

	n := 0
	for range Extract("https://example.com/", body, "text/html", scope, false) {
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Fatalf("expected iteration to stop at 2, got %d", n)
	}
}

func TestExtractIgnoresNonHTMLContent(t *testing.T) {
	t.Parallel()

	scope := mustScope(t, ScopeConfig{RootHost: "example.com"})
	for range Extract("https://example.com/file.json", []byte(`{"href":"/x"}`), "application/json", scope, true) {
		t.Fatal("json content should not yield links")
	}
}

func TestRefreshTarget(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"0; url=/next":        "/next",
		"5;URL='/quoted'":     "/quoted",
		`0; url="https://x/"`: "https://x/",
	}
	for content, want := range cases {
		got, ok := refreshTarget(content)
		if !ok || got != want {
			t.Fatalf("refreshTarget(%q) = %q, %v", content, got, ok)
		}
	}
	if _, ok := refreshTarget("30"); ok {
		t.Fatal("refresh without url should not yield a target")
	}
}
