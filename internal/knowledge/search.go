// Package knowledge provides per-tenant keyword search over a small
// knowledge base, feeding reply generation and the confidence score on
// content events.
package knowledge

import (
	"sort"
	"strings"
	"sync"
)

// Entry is one answerable knowledge-base item.
type Entry struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenant_id"`
	Title    string   `json:"title"`
	Answer   string   `json:"answer"`
	Keywords []string `json:"keywords"`
}

// Hit is a scored search result. Confidence is in [0,1].
type Hit struct {
	Entry      Entry   `json:"entry"`
	Confidence float64 `json:"confidence"`
}

// Base holds tenant-scoped entries. Lookups are read-mostly; writes only
// happen when a tenant is (re)seeded.
type Base struct {
	mu      sync.RWMutex
	entries map[string][]Entry // tenantID -> entries
}

// NewBase creates an empty knowledge base.
func NewBase() *Base {
	return &Base{entries: make(map[string][]Entry)}
}

// NewDemoBase creates a knowledge base seeded with demo content for the
// given tenant.
func NewDemoBase(tenantID string) *Base {
	b := NewBase()
	b.Seed(tenantID, demoEntries(tenantID))
	return b
}

// Seed replaces the entries for a tenant.
func (b *Base) Seed(tenantID string, entries []Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[tenantID] = entries
}

// Search scores the tenant's entries by keyword overlap with the query and
// returns matches ordered best-first.
func (b *Base) Search(tenantID, query string) []Hit {
	words := tokenize(query)
	if len(words) == 0 {
		return nil
	}

	b.mu.RLock()
	entries := b.entries[tenantID]
	b.mu.RUnlock()

	var hits []Hit
	for _, e := range entries {
		matched := 0
		for _, kw := range e.Keywords {
			if _, ok := words[strings.ToLower(kw)]; ok {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		confidence := float64(matched) / float64(len(e.Keywords))
		if confidence > 1 {
			confidence = 1
		}
		hits = append(hits, Hit{Entry: e, Confidence: confidence})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Confidence > hits[j].Confidence
	})
	return hits
}

// Best returns the highest-scoring hit, or false when nothing matches.
func (b *Base) Best(tenantID, query string) (Hit, bool) {
	hits := b.Search(tenantID, query)
	if len(hits) == 0 {
		return Hit{}, false
	}
	return hits[0], true
}

func tokenize(query string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, ".,!?;:'\"()")
		if len(w) > 1 {
			words[w] = struct{}{}
		}
	}
	return words
}

// demoEntries is the seed content used for demo tenants.
func demoEntries(tenantID string) []Entry {
	return []Entry{
		{
			ID:       "openingstijden",
			TenantID: tenantID,
			Title:    "Openingstijden",
			Answer:   "Wij zijn bereikbaar van maandag tot vrijdag tussen 9:00 en 17:30.",
			Keywords: []string{"openingstijden", "open", "bereikbaar", "tijden"},
		},
		{
			ID:       "diensten",
			TenantID: tenantID,
			Title:    "Diensten",
			Answer:   "Wij bieden websites, webshops en onderhoudscontracten aan. Vraag gerust naar een vrijblijvende offerte.",
			Keywords: []string{"diensten", "aanbod", "websites", "webshop", "offerte"},
		},
		{
			ID:       "prijzen",
			TenantID: tenantID,
			Title:    "Prijzen",
			Answer:   "Onze tarieven starten vanaf 75 euro per uur. Voor vaste projecten maken we altijd een offerte vooraf.",
			Keywords: []string{"prijs", "prijzen", "kosten", "tarief", "tarieven"},
		},
		{
			ID:       "contact",
			TenantID: tenantID,
			Title:    "Contact",
			Answer:   "Je kunt ons bereiken via info@voorbeeld.nl of vraag hier direct een medewerker te spreken.",
			Keywords: []string{"contact", "mail", "email", "telefoon", "medewerker"},
		},
	}
}
