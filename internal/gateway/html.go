package gateway

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// errorPhrases is the fixed set of markers the provider embeds in branded
// failure pages. Matching is case-insensitive over the rendered text.
var errorPhrases = []string{
	"something went wrong",
	"transaction failed",
	"transaction has failed",
	"invalid hash",
	"merchant not found",
	"an error has occurred",
	"payment could not be processed",
	"session has expired",
	"service is under maintenance",
}

// urlAttributes are the attributes whose relative values get rewritten to
// absolute provider-origin URLs so the document can be embedded off-origin.
var urlAttributes = map[string]struct{}{
	"src":    {},
	"href":   {},
	"action": {},
}

// strippedAttributes block cross-origin subresource loading once the
// document is served from the bridge instead of the provider.
var strippedAttributes = map[string]struct{}{
	"integrity":   {},
	"crossorigin": {},
}

func parseDocument(body []byte) (*html.Node, error) {
	return html.Parse(bytes.NewReader(body))
}

// hasStructuralMinimum checks the document has a root, a body and at least
// one form-like element. Anything thinner is not a checkout surface.
func hasStructuralMinimum(doc *html.Node) bool {
	var foundHTML, foundBody, foundFormLike bool
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch n.Data {
		case "html":
			foundHTML = true
		case "body":
			foundBody = true
		case "form", "script", "iframe", "input":
			foundFormLike = true
		}
	})
	return foundHTML && foundBody && foundFormLike
}

// scanErrorPhrases reports the first known error phrase found in the
// document's text content.
func scanErrorPhrases(doc *html.Node) (string, bool) {
	text := strings.ToLower(collectText(doc))
	for _, phrase := range errorPhrases {
		if strings.Contains(text, phrase) {
			return phrase, true
		}
	}
	return "", false
}

// extractTitle returns the page title, falling back to the first heading.
func extractTitle(doc *html.Node) string {
	var title, heading string
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch n.Data {
		case "title":
			if title == "" {
				title = strings.TrimSpace(collectText(n))
			}
		case "h1", "h2":
			if heading == "" {
				heading = strings.TrimSpace(collectText(n))
			}
		}
	})
	if title != "" {
		return title
	}
	return heading
}

// sanitizeCheckoutDocument rewrites relative asset references to absolute
// provider-origin URLs, strips integrity/crossorigin attributes, and pulls
// the transaction reference out of the checkout form when present. The
// returned document is safe to serve from the bridge's own origin.
func sanitizeCheckoutDocument(doc *html.Node, origin *url.URL) ([]byte, string) {
	var tranID string

	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}

		if n.Data == "input" && tranID == "" {
			if attrValue(n, "name") == "tran_id" {
				tranID = attrValue(n, "value")
			}
		}

		kept := n.Attr[:0]
		for _, a := range n.Attr {
			key := strings.ToLower(a.Key)
			if _, strip := strippedAttributes[key]; strip {
				continue
			}
			if _, rewrite := urlAttributes[key]; rewrite {
				a.Val = absolutize(a.Val, origin)
			}
			kept = append(kept, a)
		}
		n.Attr = kept
	})

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, tranID
	}
	return buf.Bytes(), tranID
}

// absolutize resolves a relative reference against the provider origin.
// Absolute URLs, fragments and non-navigational schemes pass through.
func absolutize(ref string, origin *url.URL) string {
	trimmed := strings.TrimSpace(ref)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return ref
	}
	lower := strings.ToLower(trimmed)
	for _, scheme := range []string{"data:", "javascript:", "mailto:", "tel:"} {
		if strings.HasPrefix(lower, scheme) {
			return ref
		}
	}
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.IsAbs() {
		return ref
	}
	return origin.ResolveReference(parsed).String()
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func collectText(n *html.Node) string {
	var b strings.Builder
	walk(n, func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
	})
	return b.String()
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walk(child, fn)
	}
}
