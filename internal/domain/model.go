package domain

import "strings"

// Document is a source record owned by the document store.
type Document struct {
	ID         string   `json:"id" db:"id" validate:"required"`
	Title      string   `json:"title" db:"title" validate:"required"`
	Abstract   string   `json:"abstract,omitempty" db:"abstract"`
	FullText   string   `json:"full_text,omitempty" db:"full_text"`
	DomainHint string   `json:"domain_hint,omitempty" db:"domain_hint"`
	URL        string   `json:"url,omitempty" db:"url"`
	Authors    []string `json:"authors,omitempty" db:"-"`
}

// Text is the title and abstract joined the way every stage reads them.
func (d Document) Text() string {
	abstract := strings.TrimSpace(d.Abstract)
	if abstract == "" {
		return strings.TrimSpace(d.Title)
	}
	return strings.TrimSpace(d.Title) + ". " + abstract
}

type ExtractionMethod string

const (
	MethodNLP                  ExtractionMethod = "nlp"
	MethodThemeIntegration     ExtractionMethod = "cross_paper_theme_integration"
	MethodGapFilling           ExtractionMethod = "cross_paper_gap_filling"
	MethodComplementary        ExtractionMethod = "cross_paper_complementary"
	MethodComprehensive        ExtractionMethod = "cross_paper_comprehensive"
	MethodAISynthesis          ExtractionMethod = "ai_synthesis"
	MethodTraditionalSynthesis ExtractionMethod = "traditional_synthesis"
	MethodPatternRecognition   ExtractionMethod = "pattern_recognition"
)

// CandidateIdea is a synthesized opportunity record. PriorityScore is the
// only field written after synthesis.
type CandidateIdea struct {
	Title               string           `json:"title"`
	Description         string           `json:"description"`
	Domain              Domain           `json:"domain"`
	PrimaryMetric       Metric           `json:"primary_metric"`
	IdeaType            IdeaType         `json:"idea_type"`
	ConfidenceScore     float64          `json:"confidence_score"`
	ExtractionMethod    ExtractionMethod `json:"extraction_method"`
	ProvenanceNotes     string           `json:"provenance_notes,omitempty"`
	SourceDocumentIDs   []string         `json:"source_document_ids,omitempty"`
	SourceSentence      string           `json:"source_sentence,omitempty"`
	KeyInnovation       string           `json:"key_innovation,omitempty"`
	ExpectedImpact      string           `json:"expected_impact,omitempty"`
	ImplementationNotes string           `json:"implementation_notes,omitempty"`
	Challenges          string           `json:"challenges,omitempty"`
	PriorityScore       float64          `json:"priority_score"`
}

// OriginDocumentID is the id results are keyed by in the store.
func (c CandidateIdea) OriginDocumentID() string {
	if len(c.SourceDocumentIDs) == 0 {
		return ""
	}
	return c.SourceDocumentIDs[0]
}
