package article

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ExcerptLength is the rune length of generated excerpts and summaries.
const ExcerptLength = 160

// Reading speeds in words per minute.
const (
	EditorWordsPerMinute = 250
	ShareWordsPerMinute  = 260
)

var (
	figureBlock     = regexp.MustCompile(`(?is)<figure[^>]*>.*?</figure>`)
	figcaptionBlock = regexp.MustCompile(`(?is)<figcaption[^>]*>.*?</figcaption>`)
	anyTag          = regexp.MustCompile(`<[^>]+>`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
	imgSrc          = regexp.MustCompile(`(?i)<img[^>]+src="([^"]+)"`)
	slugDisallowed  = regexp.MustCompile(`[^a-z0-9가-힣-]`)
	dashRun         = regexp.MustCompile(`-{2,}`)
)

// ExtractPlainText strips markup from article HTML. Figures and captions are
// dropped entirely and whitespace is collapsed.
func ExtractPlainText(html string) string {
	text := figureBlock.ReplaceAllString(html, " ")
	text = figcaptionBlock.ReplaceAllString(text, " ")
	text = anyTag.ReplaceAllString(text, " ")
	text = whitespaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func stripDiacritics(s string) string {
	stripped, _, err := transform.String(diacriticStripper, s)
	if err != nil {
		return s
	}
	return stripped
}

// NormalizeSlugInput canonicalises a user-typed slug. Latin diacritics are
// folded first, so "Café" becomes "cafe" rather than "caf". Anything else
// other than a-z, 0-9, Hangul syllables and '-' becomes '-', runs collapse,
// and edges are trimmed.
func NormalizeSlugInput(value string) string {
	s := strings.ToLower(stripDiacritics(value))
	s = slugDisallowed.ReplaceAllString(s, "-")
	s = dashRun.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// NormalizeTags trims, drops empties and removes duplicates, keeping order.
func NormalizeTags(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// Excerpt returns the first ExcerptLength runes of the article's plain text.
func Excerpt(html string) string {
	return Truncate(ExtractPlainText(html), ExcerptLength)
}

// TextStats describes article length for the editor sidebar.
type TextStats struct {
	Chars       int `json:"chars"`
	Words       int `json:"words"`
	ReadMinutes int `json:"read_minutes"`
}

// ContentStats counts characters and words of the plain text and estimates
// reading time at the editor reading speed.
func ContentStats(html string) TextStats {
	text := ExtractPlainText(html)
	words := len(strings.Fields(text))
	return TextStats{
		Chars:       len([]rune(text)),
		Words:       words,
		ReadMinutes: ReadMinutes(words, EditorWordsPerMinute),
	}
}

// ShareReadMinutes estimates reading time for the share page. Unlike
// ContentStats it counts every word in the body, captions included.
func ShareReadMinutes(html string) int {
	text := anyTag.ReplaceAllString(html, " ")
	return ReadMinutes(len(strings.Fields(text)), ShareWordsPerMinute)
}

// ReadMinutes is ceil(words/wpm), never below one.
func ReadMinutes(words, wpm int) int {
	if wpm <= 0 {
		wpm = EditorWordsPerMinute
	}
	minutes := int(math.Ceil(float64(words) / float64(wpm)))
	if minutes < 1 {
		return 1
	}
	return minutes
}

// ContentImageURLs lists <img src> values in document order.
func ContentImageURLs(html string) []string {
	matches := imgSrc.FindAllStringSubmatch(html, -1)
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		if m[1] != "" {
			urls = append(urls, m[1])
		}
	}
	return urls
}

// FillSEO fills empty SEO fields from the title and body.
func FillSEO(form Form) Form {
	if strings.TrimSpace(form.SEOTitle) == "" && strings.TrimSpace(form.Title) != "" {
		form.SEOTitle = Truncate(strings.TrimSpace(form.Title), 60)
	}
	if strings.TrimSpace(form.SEODescription) == "" {
		form.SEODescription = Excerpt(form.Content)
	}
	return form
}
