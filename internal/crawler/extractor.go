package crawler

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// resourceSelector matches every element that can reference a resource.
// goquery returns the matches in document order.
const resourceSelector = "link[href], script[src], img[src], video[src], video source[src], iframe[src]"

// resourceKind maps a matched element to its kind and reference attribute.
func resourceKind(sel *goquery.Selection) (ResourceKind, string, bool) {
	switch goquery.NodeName(sel) {
	case "link":
		if !isStylesheet(sel) {
			return "", "", false
		}
		return KindStylesheet, "href", true
	case "script":
		return KindScript, "src", true
	case "img":
		return KindImage, "src", true
	case "video", "source":
		return KindVideo, "src", true
	case "iframe":
		return KindIframe, "src", true
	}
	return "", "", false
}

// Extract parses body as HTML and returns the navigation links and resource
// links it references, resolved against base. Both results are deduplicated
// by absolute URL and keep first-seen order. Unparseable input yields empty
// results.
func Extract(base string, body []byte) ([]string, []ResourceLink) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil
	}

	var resources []ResourceLink
	seenResources := make(map[string]struct{})
	doc.Find(resourceSelector).Each(func(_ int, sel *goquery.Selection) {
		kind, attr, ok := resourceKind(sel)
		if !ok {
			return
		}
		raw, abs, ok := resolveAttr(base, sel, attr)
		if !ok {
			return
		}
		if _, dup := seenResources[abs]; dup {
			return
		}
		seenResources[abs] = struct{}{}
		resources = append(resources, ResourceLink{Kind: kind, RawHref: raw, URL: abs})
	})

	var nav []string
	seenNav := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		_, abs, ok := resolveAttr(base, sel, "href")
		if !ok {
			return
		}
		if _, dup := seenNav[abs]; dup {
			return
		}
		seenNav[abs] = struct{}{}
		nav = append(nav, abs)
	})
	return nav, resources
}

func resolveAttr(base string, sel *goquery.Selection, attr string) (string, string, bool) {
	raw, ok := sel.Attr(attr)
	if !ok || strings.TrimSpace(raw) == "" {
		return "", "", false
	}
	abs, err := Resolve(base, raw)
	if err != nil || !isFetchable(abs) {
		return "", "", false
	}
	return raw, abs, true
}

func isStylesheet(sel *goquery.Selection) bool {
	rel, ok := sel.Attr("rel")
	if !ok {
		return false
	}
	for _, token := range strings.Fields(rel) {
		if strings.EqualFold(token, "stylesheet") {
			return true
		}
	}
	return false
}
