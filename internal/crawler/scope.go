package crawler

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

var defaultPageExtensions = []string{"", ".html", ".htm", ".php", ".xhtml", ".asp", ".aspx"}

// Scope decides, once per offered link, whether a target is crawled or only checked.
// It is immutable after NewScope.
type Scope struct {
	RootHost string
	MaxDepth int
	MaxPages int

	pageExt map[string]struct{}
	include []*regexp.Regexp
	exclude []*regexp.Regexp
	ignore  []*regexp.Regexp
}

// NewScope compiles the scope patterns. RootHost must be set.
func NewScope(cfg ScopeConfig, pageExtensions []string) (*Scope, error) {
	root := siteHost(strings.TrimSpace(cfg.RootHost))
	if root == "" {
		return nil, fmt.Errorf("%w: root host is required", ErrInvalidScope)
	}
	include, err := compilePatterns(cfg.Include)
	if err != nil {
		return nil, fmt.Errorf("%w: include pattern: %v", ErrInvalidScope, err)
	}
	exclude, err := compilePatterns(cfg.Exclude)
	if err != nil {
		return nil, fmt.Errorf("%w: exclude pattern: %v", ErrInvalidScope, err)
	}
	ignore, err := compilePatterns(cfg.Ignore)
	if err != nil {
		return nil, fmt.Errorf("%w: ignore pattern: %v", ErrInvalidScope, err)
	}
	maxDepth := cfg.MaxDepth
	if maxDepth < 0 {
		maxDepth = -1
	}
	maxPages := cfg.MaxPages
	if maxPages < 0 {
		maxPages = 0
	}
	return &Scope{
		RootHost: root,
		MaxDepth: maxDepth,
		MaxPages: maxPages,
		pageExt:  buildPageExtensions(pageExtensions),
		include:  include,
		exclude:  exclude,
		ignore:   ignore,
	}, nil
}

// Internal reports whether target belongs to the crawled site.
func (s *Scope) Internal(target string) bool {
	host := hostOf(target)
	return host != "" && siteHost(host) == s.RootHost
}

// Ignored reports targets that are recorded but never requested.
func (s *Scope) Ignored(target string) bool {
	return matchAny(s.ignore, target)
}

// Classify returns the kind of a normalized target found in the given element.
func (s *Scope) Classify(target, tag string) LinkKind {
	if !s.Internal(target) {
		return KindExternal
	}
	switch tag {
	case "img", "script", "link", "source", "video", "audio":
		return KindInternalAsset
	}
	u, err := url.Parse(target)
	if err != nil || !s.pageExtension(u) {
		return KindInternalAsset
	}
	return KindInternalPage
}

// crawlDecision is the scope verdict for an internal page.
type crawlDecision int

const (
	crawlYes crawlDecision = iota
	crawlTooDeep
	crawlOutOfScope
)

// Crawlable decides whether an internal page at depth is itself crawled.
func (s *Scope) Crawlable(target string, depth int) crawlDecision {
	if s.MaxDepth >= 0 && depth > s.MaxDepth {
		return crawlTooDeep
	}
	if len(s.include) > 0 && !matchAny(s.include, target) {
		return crawlOutOfScope
	}
	if matchAny(s.exclude, target) {
		return crawlOutOfScope
	}
	return crawlYes
}

func (s *Scope) pageExtension(u *url.URL) bool {
	pathValue := u.Path
	if pathValue == "" || strings.HasSuffix(pathValue, "/") {
		_, ok := s.pageExt[""]
		return ok
	}
	_, ok := s.pageExt[strings.ToLower(path.Ext(pathValue))]
	return ok
}

func buildPageExtensions(list []string) map[string]struct{} {
	if len(list) == 0 {
		list = defaultPageExtensions
	}
	allowed := make(map[string]struct{}, len(list)+1)
	for _, item := range list {
		trimmed := strings.ToLower(strings.TrimSpace(item))
		if trimmed != "" && !strings.HasPrefix(trimmed, ".") {
			trimmed = "." + trimmed
		}
		allowed[trimmed] = struct{}{}
	}
	allowed[""] = struct{}{}
	return allowed
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, raw := range patterns {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		pat, err := regexp.Compile(raw)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, pat)
	}
	return compiled, nil
}

func matchAny(patterns []*regexp.Regexp, target string) bool {
	for _, pat := range patterns {
		if pat.MatchString(target) {
			return true
		}
	}
	return false
}
