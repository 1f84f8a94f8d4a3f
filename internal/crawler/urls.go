package crawler

import (
	"net"
	"net/url"
	"strings"
)

var nonWebSchemes = []string{"mailto:", "tel:", "javascript:", "data:", "sms:", "callto:", "skype:", "whatsapp:", "ftp:", "file:"}

// Normalize resolves raw against base and returns the canonical absolute form.
// A nil base is only valid for absolute references.
func Normalize(base *url.URL, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &MalformedURLError{Raw: raw, Reason: "empty reference"}
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", &MalformedURLError{Raw: raw, Reason: "parse", Err: err}
	}
	if !parsed.IsAbs() {
		if base == nil {
			return "", &MalformedURLError{Raw: raw, Reason: "relative reference without base"}
		}
		parsed = base.ResolveReference(parsed)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", &MalformedURLError{Raw: raw, Reason: "unsupported scheme " + scheme}
	}
	if parsed.Opaque != "" || parsed.Host == "" {
		return "", &MalformedURLError{Raw: raw, Reason: "missing host"}
	}

	normalized := *parsed
	normalized.Scheme = scheme
	normalized.Host = canonicalHost(scheme, parsed)
	if normalized.Host == "" {
		return "", &MalformedURLError{Raw: raw, Reason: "missing host"}
	}
	normalized.Fragment = ""
	normalized.RawFragment = ""
	normalized.ForceQuery = false

	escaped := cleanPath(parsed.EscapedPath())
	unescaped, err := url.PathUnescape(escaped)
	if err != nil {
		return "", &MalformedURLError{Raw: raw, Reason: "path", Err: err}
	}
	normalized.Path = unescaped
	normalized.RawPath = escaped

	return normalized.String(), nil
}

// cleanPath removes dot segments and repeated slashes from an escaped path
// and upper-cases its percent-escapes. An escaped slash stays part of its
// segment. A trailing slash is kept.
func cleanPath(escaped string) string {
	segments := strings.Split(escaped, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "", ".":
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, upperEscapes(seg))
		}
	}
	cleaned := "/" + strings.Join(out, "/")
	if strings.HasSuffix(escaped, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

func upperEscapes(seg string) string {
	if !strings.Contains(seg, "%") {
		return seg
	}
	b := []byte(seg)
	for i := 0; i+2 < len(b); i++ {
		if b[i] == '%' && isHex(b[i+1]) && isHex(b[i+2]) {
			b[i+1] = upperHex(b[i+1])
			b[i+2] = upperHex(b[i+2])
			i += 2
		}
	}
	return string(b)
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func upperHex(c byte) byte {
	if 'a' <= c && c <= 'f' {
		return c - 'a' + 'A'
	}
	return c
}

func canonicalHost(scheme string, u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port == "" {
		if strings.Contains(host, ":") {
			return "[" + host + "]"
		}
		return host
	}
	return net.JoinHostPort(host, port)
}

// IsNonWebReference reports references that are not links to check: other
// schemes and bare same-page fragments.
func IsNonWebReference(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, prefix := range nonWebSchemes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// siteHost strips a leading "www." so that both forms count as one site.
func siteHost(host string) string {
	host = strings.ToLower(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimPrefix(host, "www.")
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
