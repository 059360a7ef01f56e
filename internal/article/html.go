package article

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var doubleQuoteStyle = regexp.MustCompile(`(?i)style="([^"]*)"`)
var singleQuoteStyle = regexp.MustCompile(`(?i)style='([^']*)'`)

var strippedStyleProps = map[string]struct{}{
	"color":            {},
	"background":       {},
	"background-color": {},
}

// NormalizeArticleHTML removes color and background declarations from inline
// styles so pasted content follows the site theme. A style attribute left
// with no declarations is dropped.
func NormalizeArticleHTML(html string) string {
	if html == "" {
		return ""
	}

	rewrite := func(match string, re *regexp.Regexp, quote string) string {
		sub := re.FindStringSubmatch(match)
		if len(sub) != 2 {
			return match
		}
		kept := filterDeclarations(sub[1])
		if len(kept) == 0 {
			return ""
		}
		return fmt.Sprintf("style=%s%s%s", quote, strings.Join(kept, "; "), quote)
	}

	html = doubleQuoteStyle.ReplaceAllStringFunc(html, func(s string) string {
		return rewrite(s, doubleQuoteStyle, `"`)
	})
	html = singleQuoteStyle.ReplaceAllStringFunc(html, func(s string) string {
		return rewrite(s, singleQuoteStyle, `'`)
	})
	return html
}

func filterDeclarations(style string) []string {
	var kept []string
	for _, decl := range strings.Split(style, ";") {
		decl = strings.TrimSpace(decl)
		if decl == "" {
			continue
		}
		property, _, _ := strings.Cut(decl, ":")
		property = strings.ToLower(strings.TrimSpace(property))
		if property == "" {
			continue
		}
		if _, drop := strippedStyleProps[property]; drop {
			continue
		}
		kept = append(kept, decl)
	}
	return kept
}

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

func articlePolicy() *bluemonday.Policy {
	policyOnce.Do(func() {
		p := bluemonday.NewPolicy()
		p.AllowElements(
			"p", "br", "strong", "em", "u", "s", "b", "i",
			"h1", "h2", "h3", "h4", "h5", "h6",
			"ul", "ol", "li",
			"figure", "figcaption",
			"blockquote", "pre", "code",
			"table", "thead", "tbody", "tr", "th", "td",
			"div", "span", "hr", "sub", "sup",
		)
		p.AllowAttrs("href", "target", "rel").OnElements("a")
		p.AllowAttrs("src", "alt", "width", "height").OnElements("img")
		p.AllowAttrs("colspan", "rowspan").OnElements("td", "th")
		p.AllowAttrs("title", "class", "style").Globally()
		p.AllowDataAttributes()
		p.AllowStandardURLs()
		// AllowStandardURLs forces rel="nofollow"; article links keep their own rel.
		p.RequireNoFollowOnLinks(false)
		p.AllowDataURIImages()
		policy = p
	})
	return policy
}

// Sanitize strips scripts, event handlers, javascript: URLs and embedded
// frames, objects and forms from untrusted article HTML.
func Sanitize(html string) string {
	if html == "" {
		return ""
	}
	return articlePolicy().Sanitize(html)
}
