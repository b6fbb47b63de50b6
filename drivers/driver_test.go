package drivers

import (
	"context"
	"testing"

	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/models"
)

func TestSequential_CountsValidatedRecords(t *testing.T) {
	env, events := testEnv(t, nil)
	env.Collector = engine.NewCollector[models.Record]()

	out := sequential(context.Background(), env, models.ModeFAQ,
		[]models.Target{{Kind: models.KindQuery, Value: "go"}},
		func(context.Context, models.Target) ([]models.Record, error) {
			return []models.Record{
				&models.FAQRecord{Kind: models.FAQKindQuestion, Question: "What is Go?"},
				&models.FAQRecord{Kind: models.FAQKindQuestion},
			}, nil
		})

	if len(out) != 1 || env.Collector.Len() != 1 {
		t.Fatalf("records = %d, collected = %d, want 1 and 1", len(out), env.Collector.Len())
	}
	events.waitMatching(t, "faq: 1 record(s) from go", 1)
	if got := events.matching("faq: 2 record(s)"); len(got) != 0 {
		t.Errorf("status counts rejected records: %v", got)
	}
}
