package scrape

import (
	"bytes"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// suspiciousEmail matches extraction artifacts that look like addresses
// but never are: asset filenames, IP-literal and placeholder domains.
var suspiciousEmail = regexp.MustCompile(
	`(?i)(\.png$|\.jpg$|\.jpeg$|\.gif$|\.svg$|\.webp$|\.css$|\.js$|@\d+\.\d+\.\d+\.\d+|@localhost|@example\.|@test\.)`)

// ExtractEmails extracts unique email addresses from an HTML document.
// It walks the parsed tree collecting text nodes and mailto links, then
// filters common false positives. The returned list is sorted for
// deterministic output.
func ExtractEmails(body []byte) []string {
	found := make(map[string]struct{})

	doc, err := html.Parse(bytes.NewReader(body))
	if err == nil {
		var walk func(*html.Node)
		walk = func(n *html.Node) {
			switch n.Type {
			case html.TextNode:
				collectEmails(n.Data, found)
			case html.ElementNode:
				if n.Data == "a" {
					for _, attr := range n.Attr {
						if attr.Key == "href" && strings.HasPrefix(attr.Val, "mailto:") {
							addr := strings.TrimPrefix(attr.Val, "mailto:")
							if i := strings.IndexByte(addr, '?'); i >= 0 {
								addr = addr[:i]
							}
							collectEmails(addr, found)
						}
					}
				}
				// Script and style text is still worth scanning; sites
				// frequently embed contact addresses in JSON-LD blocks.
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
		}
		walk(doc)
	} else {
		// Malformed beyond repair: fall back to a raw scan
		collectEmails(string(body), found)
	}

	out := make([]string, 0, len(found))
	for email := range found {
		out = append(out, email)
	}
	sort.Strings(out)
	return out
}

func collectEmails(text string, found map[string]struct{}) {
	for _, match := range emailPattern.FindAllString(text, -1) {
		email := strings.ToLower(strings.TrimSpace(match))
		if !plausibleEmail(email) {
			continue
		}
		found[email] = struct{}{}
	}
}

// plausibleEmail filters extraction false positives.
func plausibleEmail(email string) bool {
	switch email {
	case "example@example.com", "test@test.com", "user@domain.com", "info@example.org":
		return false
	}
	return !suspiciousEmail.MatchString(email)
}
