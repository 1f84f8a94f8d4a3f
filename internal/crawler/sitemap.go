package crawler

import (
	"bytes"
	"encoding/xml"
	"iter"
	"net/url"
	"strings"
)

const imageNamespace = "http://www.google.com/schemas/sitemap-image/1.1"

// sitemapParser reads sitemap indexes and url sets such as WordPress's
// wp-sitemap.xml. Decoding stops at the first syntax error, keeping what was read.
// Image extension entries (image:loc) become img links when assets are checked.
type sitemapParser struct {
	scope  *Scope
	assets bool
}

func (p sitemapParser) Links(page *url.URL, body []byte) iter.Seq[Link] {
	return func(yield func(Link) bool) {
		dec := xml.NewDecoder(bytes.NewReader(body))
		dec.Strict = false
		dec.AutoClose = xml.HTMLAutoClose

		source := page.String()
		seen := make(map[string]struct{})
		var parent, tag string
		var inLoc bool
		var loc strings.Builder

		for {
			tok, err := dec.Token()
			if err != nil {
				return
			}
			switch t := tok.(type) {
			case xml.StartElement:
				switch strings.ToLower(t.Name.Local) {
				case "sitemap", "url":
					parent = strings.ToLower(t.Name.Local)
				case "loc":
					tag = locTag(t.Name.Space)
					inLoc = true
					loc.Reset()
				}
			case xml.CharData:
				if inLoc {
					loc.Write(t)
				}
			case xml.EndElement:
				if strings.ToLower(t.Name.Local) != "loc" || !inLoc {
					continue
				}
				inLoc = false
				raw := strings.TrimSpace(loc.String())
				if raw == "" || parent == "" {
					continue
				}
				if tag == "img" && (parent != "url" || !p.assets) {
					continue
				}
				link := p.link(page, source, parent, tag, raw)
				if _, dup := seen[link.Target]; dup {
					continue
				}
				seen[link.Target] = struct{}{}
				if !yield(link) {
					return
				}
			}
		}
	}
}

func (p sitemapParser) link(page *url.URL, source, parent, tag, raw string) Link {
	target, err := Normalize(page, raw)
	if err != nil {
		return Link{Source: source, Target: raw, Tag: tag, Err: err}
	}
	kind := KindSitemap
	if parent == "url" {
		kind = p.scope.Classify(target, tag)
	}
	return Link{Source: source, Target: target, Kind: kind, Tag: tag}
}

// locTag maps the namespace of a loc element to the tag its link carries.
// Undeclared prefixes arrive as the bare prefix.
func locTag(space string) string {
	if space == imageNamespace || space == "image" {
		return "img"
	}
	return "loc"
}
