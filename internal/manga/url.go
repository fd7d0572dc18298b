package manga

import (
	"net/url"
	"strings"
)

// AbsoluteURL resolves ref against base. Protocol-relative references get
// https. An empty ref stays empty.
func AbsoluteURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if parsed.IsAbs() {
		return parsed.String()
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	if !strings.HasPrefix(ref, "/") {
		// Site-relative paths resolve from the root, not the listing path.
		baseURL.Path = "/"
	}
	return baseURL.ResolveReference(parsed).String()
}

// IDFromURL derives a record id from the path segment following /manga/.
// It returns "" when the URL does not point at a manga page.
func IDFromURL(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	_, rest, ok := strings.Cut(parsed.Path, "/manga/")
	if !ok {
		return ""
	}
	slug, _, _ := strings.Cut(rest, "/")
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return ""
	}
	return IDPrefix + slug
}

// SlugFromID strips the MangaNato prefix from an id.
func SlugFromID(id string) string {
	return strings.TrimPrefix(id, IDPrefix)
}
