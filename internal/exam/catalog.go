package exam

import (
	"fmt"
)

// band assigns one category to a contiguous, inclusive question-id range.
type band struct {
	from, to int
	category string
}

// Catalog is the static, total mapping from question id to category.
// Every id in 1..Total maps to exactly one category; gaps or overlaps are a
// startup-time configuration error, never a per-call concern.
type Catalog struct {
	total      int
	bands      []band
	categories []string
}

// defaultBands is the question paper layout: 70 questions in bands of five.
// Computer Networks and Software Engineering each get a second band at the
// tail, so there are 14 bands over 12 distinct categories.
var defaultBands = []band{
	{1, 5, "Data Structures"},
	{6, 10, "Algorithms"},
	{11, 15, "OOP"},
	{16, 20, "DBMS"},
	{21, 25, "Operating Systems"},
	{26, 30, "Computer Networks"},
	{31, 35, "Software Engineering"},
	{36, 40, "Programming Languages"},
	{41, 45, "Computer Architecture"},
	{46, 50, "Discrete Mathematics"},
	{51, 55, "Theory of Computation"},
	{56, 60, "Web Technologies"},
	{61, 65, "Computer Networks"},
	{66, 70, "Software Engineering"},
}

// NewCatalog builds and validates the default catalog for the given question
// count. Returns an error if the bands do not cover 1..total exactly.
func NewCatalog(total int) (*Catalog, error) {
	c := &Catalog{total: total, bands: defaultBands}
	if err := c.validate(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, b := range c.bands {
		if !seen[b.category] {
			seen[b.category] = true
			c.categories = append(c.categories, b.category)
		}
	}
	return c, nil
}

// validate checks that the bands are contiguous, ordered, and cover exactly
// 1..total with no gaps or overlaps.
func (c *Catalog) validate() error {
	next := 1
	for _, b := range c.bands {
		if b.from != next {
			return fmt.Errorf("category map: band %q starts at %d, expected %d", b.category, b.from, next)
		}
		if b.to < b.from {
			return fmt.Errorf("category map: band %q is empty (%d..%d)", b.category, b.from, b.to)
		}
		if b.category == "" {
			return fmt.Errorf("category map: band starting at %d has no category", b.from)
		}
		next = b.to + 1
	}
	if next != c.total+1 {
		return fmt.Errorf("category map covers 1..%d, expected 1..%d", next-1, c.total)
	}
	return nil
}

// Total returns the number of question slots.
func (c *Catalog) Total() int {
	return c.total
}

// Categories returns the distinct category names in paper order.
func (c *Catalog) Categories() []string {
	return append([]string(nil), c.categories...)
}

// CategoryFor returns the category of a question id. The catalog is total,
// so this cannot fail for ids in 1..Total; out-of-range ids return "".
func (c *Catalog) CategoryFor(questionID int) string {
	for _, b := range c.bands {
		if questionID >= b.from && questionID <= b.to {
			return b.category
		}
	}
	return ""
}
