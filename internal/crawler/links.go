package crawler

import (
	"bytes"
	"iter"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const linkSelector = "a[href], area[href], iframe[src], meta[http-equiv], img[src], img[srcset], script[src], link[href], source[src], source[srcset], video[src], audio[src]"

// Parser turns fetched content into a lazy sequence of links.
type Parser interface {
	Links(page *url.URL, body []byte) iter.Seq[Link]
}

// ParserFor selects the parser for a Content-Type header value. Unknown types
// get a parser that yields nothing.
func ParserFor(contentType string, scope *Scope, assets bool) Parser {
	switch mediaType(contentType) {
	case "text/html", "application/xhtml+xml":
		return htmlParser{scope: scope, assets: assets}
	case "application/xml", "text/xml":
		return sitemapParser{scope: scope, assets: assets}
	default:
		return emptyParser{}
	}
}

// Extract parses content fetched from pageURL. It never fails: unparseable
// pages and content types yield an empty sequence.
func Extract(pageURL string, body []byte, contentType string, scope *Scope, assets bool) iter.Seq[Link] {
	page, err := url.Parse(pageURL)
	if err != nil || len(body) == 0 {
		return emptyParser{}.Links(nil, nil)
	}
	if strings.TrimSpace(contentType) == "" {
		contentType = http.DetectContentType(body)
	}
	return ParserFor(contentType, scope, assets).Links(page, body)
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

type emptyParser struct{}

func (emptyParser) Links(*url.URL, []byte) iter.Seq[Link] {
	return func(func(Link) bool) {}
}

type htmlParser struct {
	scope  *Scope
	assets bool
}

func (p htmlParser) Links(page *url.URL, body []byte) iter.Seq[Link] {
	return func(yield func(Link) bool) {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return
		}
		base := page
		if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
			if resolved, err := page.Parse(strings.TrimSpace(href)); err == nil {
				base = resolved
			}
		}
		source := page.String()
		seen := make(map[string]struct{})

		doc.Find(linkSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			tag := goquery.NodeName(s)
			raw, ok := p.reference(tag, s)
			if !ok || IsNonWebReference(raw) {
				return true
			}
			target, err := Normalize(base, raw)
			if err != nil {
				if _, dup := seen[raw]; dup {
					return true
				}
				seen[raw] = struct{}{}
				return yield(Link{Source: source, Target: strings.TrimSpace(raw), Tag: tag, Err: err})
			}
			if _, dup := seen[target]; dup {
				return true
			}
			seen[target] = struct{}{}
			return yield(Link{
				Source:     source,
				Target:     target,
				AnchorText: anchorText(tag, s),
				Kind:       p.scope.Classify(target, tag),
				Tag:        tag,
			})
		})
	}
}

// reference returns the raw URL an element points at, if it is one we check.
func (p htmlParser) reference(tag string, s *goquery.Selection) (string, bool) {
	switch tag {
	case "a", "area":
		return s.Attr("href")
	case "iframe":
		return s.Attr("src")
	case "meta":
		equiv, _ := s.Attr("http-equiv")
		if !strings.EqualFold(strings.TrimSpace(equiv), "refresh") {
			return "", false
		}
		content, _ := s.Attr("content")
		return refreshTarget(content)
	}
	if !p.assets {
		return "", false
	}
	switch tag {
	case "link":
		rel := strings.ToLower(s.AttrOr("rel", ""))
		if !strings.Contains(rel, "stylesheet") && !strings.Contains(rel, "icon") {
			return "", false
		}
		return s.Attr("href")
	case "img", "source":
		if src, ok := s.Attr("src"); ok && strings.TrimSpace(src) != "" {
			return src, true
		}
		return firstSrcset(s.AttrOr("srcset", ""))
	default:
		return s.Attr("src")
	}
}

func refreshTarget(content string) (string, bool) {
	lower := strings.ToLower(content)
	idx := strings.Index(lower, "url=")
	if idx < 0 {
		return "", false
	}
	target := strings.TrimSpace(content[idx+len("url="):])
	target = strings.Trim(target, `"'`)
	return target, target != ""
}

func firstSrcset(srcset string) (string, bool) {
	first, _, _ := strings.Cut(srcset, ",")
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return "", false
	}
	return fields[0], true
}

func anchorText(tag string, s *goquery.Selection) string {
	switch tag {
	case "img":
		return collapseSpace(s.AttrOr("alt", ""))
	case "a", "area":
		if text := collapseSpace(s.Text()); text != "" {
			return text
		}
		if title := collapseSpace(s.AttrOr("title", "")); title != "" {
			return title
		}
		return collapseSpace(s.Find("img[alt]").First().AttrOr("alt", ""))
	}
	return ""
}

func collapseSpace(v string) string {
	return strings.Join(strings.Fields(v), " ")
}
