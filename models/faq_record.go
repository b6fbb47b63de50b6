package models

import (
	"strconv"
	"strings"
	"time"
)

// FAQ record kinds.
const (
	FAQKindQuestion = "question"
	FAQKindRelated  = "related"
)

// FAQRecord is one expanded "people also ask" question, or one entry of the
// related searches panel when Kind is FAQKindRelated.
type FAQRecord struct {
	Query       string
	Kind        string
	Question    string
	Answer      string
	SourceURL   string
	SourceTitle string
	Position    int
	ScrapedAt   time.Time
}

var faqColumns = []string{
	"id", "query", "kind", "position", "question", "answer", "source_url", "source_title", "scraped_at",
}

func (r *FAQRecord) Mode() Mode { return ModeFAQ }
func (r *FAQRecord) DedupKey() string { return compositeKey(r.Kind, r.Question) }
func (r *FAQRecord) ID() string { return recordID(r.DedupKey()) }
func (r *FAQRecord) Columns() []string { return faqColumns }

func (r *FAQRecord) Row() []string {
	return []string{
		r.ID(),
		r.Query,
		r.Kind,
		strconv.Itoa(r.Position),
		r.Question,
		r.Answer,
		r.SourceURL,
		r.SourceTitle,
		formatTime(r.ScrapedAt),
	}
}

func (r *FAQRecord) Validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return invalid(ModeFAQ, "question")
	}
	if r.Kind != FAQKindQuestion && r.Kind != FAQKindRelated {
		return invalid(ModeFAQ, "kind")
	}
	return nil
}
