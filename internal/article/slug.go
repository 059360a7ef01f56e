package article

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"golang.org/x/sync/singleflight"
)

// MaxSlugAttempts bounds how many consecutive sequences Generate tries.
const MaxSlugAttempts = 20

var categoryCodes = map[string]string{
	SpecialEditionSlug: "x1",
	"politics":         "k7",
	"economy":          "m4",
	"society":          "n3",
	"culture":          "c8",
	"opinion":          "p5",
	"sports":           "s2",
}

// hashText is djb2 over UTF-16 code units, wrapped to 32 bits.
func hashText(value string) uint32 {
	h := uint32(5381)
	for _, unit := range utf16.Encode([]rune(value)) {
		h = h*33 + uint32(unit)
	}
	return h
}

// toBase36 renders value in lowercase base 36, left-padded with zeros to at
// least width digits. Negative values clamp to zero.
func toBase36(value int64, width int) string {
	if value < 0 {
		value = 0
	}
	s := strconv.FormatInt(value, 36)
	if len(s) < width {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return s
}

// CategoryCode returns the two-character prefix for a category slug.
func CategoryCode(categorySlug string) string {
	if code, ok := categoryCodes[categorySlug]; ok {
		return code
	}
	h := int64(hashText(categorySlug))
	return toBase36(h%36, 1) + toBase36((h/36)%36, 1)
}

// BuildSlug encodes category, UTC date, sequence and a title signature into
// an internal slug of the form {cat}{yy}{ddd}-{seq}{sig}.
func BuildSlug(categorySlug string, sequence int, title string, now time.Time) string {
	now = now.UTC()
	yearCode := toBase36(int64(now.Year()%100), 2)
	dayCode := toBase36(int64(now.YearDay()), 2)
	sequenceCode := toBase36(int64(sequence)+137, 3)
	signature := (int64(hashText(categorySlug+":"+title)) + int64(sequence)*97) % 1296
	signatureCode := toBase36(signature, 2)
	return CategoryCode(categorySlug) + yearCode + dayCode + "-" + sequenceCode + signatureCode
}

// SlugSource is the data Generator needs. *Store satisfies it.
type SlugSource interface {
	CategorySlug(ctx context.Context, categoryID string) (string, error)
	CountInCategory(ctx context.Context, categoryID string) (int, error)
	SlugTaken(ctx context.Context, slug, excludeID string) (bool, error)
}

// GeneratedSlug is a slug together with the sequence that produced it.
type GeneratedSlug struct {
	Value    string `json:"slug"`
	Sequence int    `json:"sequence"`
}

// Generator produces collision-free internal slugs.
type Generator struct {
	source SlugSource
	now    func() time.Time
	group  singleflight.Group
}

// NewGenerator wires a Generator to its data source.
func NewGenerator(source SlugSource) *Generator {
	return &Generator{source: source, now: time.Now}
}

// Generate returns the first free slug starting at the category's article
// count plus one. excludeID is the article being edited, if any.
func (g *Generator) Generate(ctx context.Context, categoryID, title, excludeID string) (GeneratedSlug, error) {
	// Merges identical concurrent requests only; the unique slug index is the
	// collision guard.
	key := categoryID + "\x00" + excludeID + "\x00" + title
	result, err, _ := g.group.Do(key, func() (interface{}, error) {
		return g.generate(ctx, categoryID, title, excludeID)
	})
	if err != nil {
		return GeneratedSlug{}, err
	}
	return result.(GeneratedSlug), nil
}

func (g *Generator) generate(ctx context.Context, categoryID, title, excludeID string) (GeneratedSlug, error) {
	categorySlug, err := g.source.CategorySlug(ctx, categoryID)
	if err != nil {
		return GeneratedSlug{}, err
	}
	if categorySlug == "" {
		return GeneratedSlug{}, ErrUnknownCategory
	}

	count, err := g.source.CountInCategory(ctx, categoryID)
	if err != nil {
		return GeneratedSlug{}, fmt.Errorf("count category articles: %w", err)
	}
	base := count + 1
	now := g.now()

	for offset := 0; offset < MaxSlugAttempts; offset++ {
		sequence := base + offset
		candidate := BuildSlug(categorySlug, sequence, title, now)
		taken, err := g.source.SlugTaken(ctx, candidate, excludeID)
		if err != nil {
			return GeneratedSlug{}, fmt.Errorf("check slug %s: %w", candidate, err)
		}
		if !taken {
			return GeneratedSlug{Value: candidate, Sequence: sequence}, nil
		}
	}
	return GeneratedSlug{}, ErrSlugExhausted
}
