package catalog

import (
	"fmt"
	"math/rand"
	"strings"
)

// NoMatchFallback decides what happens when a label matches no category.
type NoMatchFallback string

const (
	// FallbackRandom picks a uniformly random category. A product-bearing turn
	// therefore always yields an ad while the catalog is non-empty.
	FallbackRandom NoMatchFallback = "random"
	// FallbackSuppress returns no category and no product.
	FallbackSuppress NoMatchFallback = "suppress-ad"
)

// ParseFallback validates a fallback policy name. Empty means random.
func ParseFallback(raw string) (NoMatchFallback, error) {
	switch NoMatchFallback(strings.TrimSpace(raw)) {
	case "", FallbackRandom:
		return FallbackRandom, nil
	case FallbackSuppress:
		return FallbackSuppress, nil
	default:
		return "", fmt.Errorf("unknown no-match fallback %q", raw)
	}
}

// Selection is the outcome of matching: Product is nil only when the chosen
// category has no products, the catalog is empty, or the suppress policy applied.
type Selection struct {
	Category string   `json:"category"`
	Product  *Product `json:"product"`
}

// Matcher resolves free-text labels to a category and draws a product from it.
type Matcher struct {
	catalog  *Catalog
	fallback NoMatchFallback
	intN     func(n int) int
}

type MatcherOption func(*Matcher)

// WithIntN replaces the random source, mainly for tests.
func WithIntN(fn func(n int) int) MatcherOption {
	return func(m *Matcher) {
		m.intN = fn
	}
}

func NewMatcher(c *Catalog, fallback NoMatchFallback, opts ...MatcherOption) *Matcher {
	m := &Matcher{
		catalog:  c,
		fallback: fallback,
		intN:     rand.Intn,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// MatchCategory returns the category for a label. Matching is case-insensitive:
// exact first, then substring in either direction, then the fallback policy.
// ok is false only under the suppress policy or with an empty catalog.
func (m *Matcher) MatchCategory(label string) (category string, ok bool) {
	categories := m.catalog.categories
	if len(categories) == 0 {
		return "", false
	}

	topic := strings.ToLower(strings.TrimSpace(label))
	if topic != "" {
		for _, c := range categories {
			if strings.ToLower(c) == topic {
				return c, true
			}
		}
		for _, c := range categories {
			lc := strings.ToLower(c)
			if strings.Contains(lc, topic) || strings.Contains(topic, lc) {
				return c, true
			}
		}
	}

	if m.fallback == FallbackSuppress {
		return "", false
	}
	return categories[m.intN(len(categories))], true
}

// Select matches the label and draws a uniformly random product from the category.
func (m *Matcher) Select(label string) Selection {
	category, ok := m.MatchCategory(label)
	if !ok {
		return Selection{}
	}

	products := m.catalog.Products(category)
	if len(products) == 0 {
		return Selection{Category: category}
	}
	p := products[m.intN(len(products))]
	return Selection{Category: category, Product: &p}
}
