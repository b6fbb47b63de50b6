package engine

import (
	"fmt"
	"testing"

	"github.com/use-agent/harvest/models"
)

func listing(query, name, address string) *models.MapsRecord {
	return &models.MapsRecord{Query: query, Name: name, Address: address}
}

func TestDedup_CollapsesAcrossTargets(t *testing.T) {
	c := NewCollector[models.Record]()
	c.Add(listing("pizza", "X", "Y"), listing("pizza", "Z", "Y"))
	c.Add(listing("pasta", "X", "Y"))

	removed := c.Dedup()
	got := c.Records()

	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if len(got) != 2 {
		t.Fatalf("records = %d, want 2", len(got))
	}
	first := got[0].(*models.MapsRecord)
	if first.Query != "pizza" {
		t.Errorf("first occurrence should win, got query %q", first.Query)
	}
}

func TestDedup_RequiresFullCompositeKey(t *testing.T) {
	in := []*models.MapsRecord{
		listing("q", "Cafe", "Main St 1"),
		listing("q", "Cafe", "Main St 2"),
		listing("q", "Bistro", "Main St 1"),
	}
	out, removed := Dedup(in)
	if removed != 0 || len(out) != 3 {
		t.Errorf("partial key matches must survive: removed=%d len=%d", removed, len(out))
	}
}

func TestDedup_NeverGrows(t *testing.T) {
	for n := 0; n < 20; n++ {
		in := make([]*models.FAQRecord, n)
		for i := range in {
			in[i] = &models.FAQRecord{Kind: models.FAQKindQuestion, Question: fmt.Sprint(i % 4)}
		}
		out, removed := Dedup(in)
		if len(out) > len(in) || len(out)+removed != len(in) {
			t.Fatalf("n=%d: out=%d removed=%d", n, len(out), removed)
		}
	}
}

func TestDedup_NormalisesWhitespaceAndCase(t *testing.T) {
	in := []*models.MapsRecord{
		listing("a", "Joe's  Pizza", "1 Main St"),
		listing("b", "joe's pizza", " 1 main st "),
	}
	if _, removed := Dedup(in); removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
}
