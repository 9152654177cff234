package exam

import "testing"

func TestCatalogCoversWholePaper(t *testing.T) {
	c, err := NewCatalog(70)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	if c.Total() != 70 {
		t.Fatalf("expected 70 questions, got %d", c.Total())
	}
	for q := 1; q <= 70; q++ {
		if c.CategoryFor(q) == "" {
			t.Fatalf("question %d has no category", q)
		}
	}
	if c.CategoryFor(0) != "" || c.CategoryFor(71) != "" {
		t.Fatal("expected out-of-range ids to map to empty category")
	}
}

func TestCatalogBandAssignments(t *testing.T) {
	c, err := NewCatalog(70)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}

	cases := []struct {
		questionID int
		want       string
	}{
		{1, "Data Structures"},
		{5, "Data Structures"},
		{6, "Algorithms"},
		{30, "Computer Networks"},
		{35, "Software Engineering"},
		{60, "Web Technologies"},
		{61, "Computer Networks"}, // second band
		{65, "Computer Networks"},
		{66, "Software Engineering"}, // second band
		{70, "Software Engineering"},
	}
	for _, tc := range cases {
		if got := c.CategoryFor(tc.questionID); got != tc.want {
			t.Errorf("question %d: expected %q, got %q", tc.questionID, tc.want, got)
		}
	}
}

func TestCatalogDistinctCategories(t *testing.T) {
	c, err := NewCatalog(70)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	categories := c.Categories()
	if len(categories) != 12 {
		t.Fatalf("expected 12 distinct categories, got %d", len(categories))
	}
	if categories[0] != "Data Structures" {
		t.Fatalf("expected paper order to start with Data Structures, got %q", categories[0])
	}
	seen := make(map[string]bool)
	for _, name := range categories {
		if seen[name] {
			t.Fatalf("duplicate category %q", name)
		}
		seen[name] = true
	}
}

func TestCatalogRejectsBadTotals(t *testing.T) {
	if _, err := NewCatalog(60); err == nil {
		t.Fatal("expected error for total below band coverage")
	}
	if _, err := NewCatalog(75); err == nil {
		t.Fatal("expected error for total above band coverage")
	}
}
