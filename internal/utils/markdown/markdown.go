package markdown

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// FromHTML converts serialized page content to markdown with a light
// cleanup pass. Used for the markdown content-snapshot format.
func FromHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	// Prefer a main content area when the page declares one.
	var selection *goquery.Selection
	for _, tag := range []string{"main", "[role=\"main\"]", "#content", "#main"} {
		if doc.Find(tag).Length() > 0 {
			selection = doc.Find(tag).First()
			break
		}
	}
	if selection == nil {
		selection = doc.Find("body")
	}

	selection.Find("script, style, noscript, iframe, svg").Each(func(_ int, s *goquery.Selection) {
		s.Remove()
	})

	body, err := selection.Html()
	if err != nil {
		return ""
	}

	conv := md.NewConverter("", true, nil)
	out, err := conv.ConvertString(body)
	if err != nil {
		return ""
	}
	return clean(out)
}

var (
	reBlank   = regexp.MustCompile(`\n{3,}`)
	reTrailBS = regexp.MustCompile(`\\+\n`)
)

func clean(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = reTrailBS.ReplaceAllString(s, "\n")
	s = reBlank.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s) + "\n"
}
