package knowledge

import (
	"testing"
)

func TestSearchMatchesKeywords(t *testing.T) {
	t.Parallel()

	b := NewDemoBase("demo-tenant")
	hits := b.Search("demo-tenant", "Wat zijn jullie prijzen?")
	if len(hits) == 0 {
		t.Fatal("expected a hit for 'prijzen'")
	}
	if hits[0].Entry.ID != "prijzen" {
		t.Errorf("expected prijzen entry first, got %q", hits[0].Entry.ID)
	}
	if hits[0].Confidence <= 0 || hits[0].Confidence > 1 {
		t.Errorf("confidence out of range: %v", hits[0].Confidence)
	}
}

func TestSearchIsTenantScoped(t *testing.T) {
	t.Parallel()

	b := NewDemoBase("tenant-a")
	if hits := b.Search("tenant-b", "prijzen"); hits != nil {
		t.Errorf("tenant-b should see no entries, got %d hits", len(hits))
	}
}

func TestSearchNoMatch(t *testing.T) {
	t.Parallel()

	b := NewDemoBase("demo-tenant")
	if _, ok := b.Best("demo-tenant", "iets volstrekt onbekends"); ok {
		t.Error("expected no hit for unrelated query")
	}
}

func TestSearchStripsPunctuation(t *testing.T) {
	t.Parallel()

	b := NewDemoBase("demo-tenant")
	if _, ok := b.Best("demo-tenant", "Contact?!"); !ok {
		t.Error("punctuation around a keyword should not prevent a match")
	}
}
