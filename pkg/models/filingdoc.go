package models

// FilingDocument is the canonical per-filing fact stream emitted by the
// external XBRL parser: one JSON document per filing with the facts and the
// structural linkbases scoped to it.
type FilingDocument struct {
	Company       string           `json:"company"`
	FilingType    string           `json:"filing_type"`
	Year          int              `json:"year"`
	Metadata      FilingMetadata   `json:"metadata"`
	Facts         []RawFact        `json:"facts"`
	Relationships RawRelationships `json:"relationships"`
}

// FilingMetadata carries filing-level context from the parser.
type FilingMetadata struct {
	CompanyName string `json:"company_name"`
	FilingType  string `json:"filing_type"`
	Taxonomy    string `json:"taxonomy,omitempty"`
	SourceURL   string `json:"source_url,omitempty"`
}

// RawFact is a single parsed fact. Optional fields are pointers so absence is
// distinguishable from zero; Dimensions maps axis name to member name.
type RawFact struct {
	Concept           string             `json:"concept"`
	Taxonomy          string             `json:"taxonomy"`
	NormalizedLabel   string             `json:"normalized_label,omitempty"`
	ConceptType       string             `json:"concept_type,omitempty"`
	ConceptBalance    string             `json:"concept_balance,omitempty"`
	ConceptPeriodType string             `json:"concept_period_type,omitempty"`
	ConceptDataType   string             `json:"concept_data_type,omitempty"`
	ConceptAbstract   bool               `json:"concept_abstract,omitempty"`
	StatementType     string             `json:"statement_type,omitempty"`
	ValueNumeric      *float64           `json:"value_numeric,omitempty"`
	ValueText         *string            `json:"value_text,omitempty"`
	UnitMeasure       string             `json:"unit_measure,omitempty"`
	Decimals          *int               `json:"decimals,omitempty"`
	ScaleInt          *int               `json:"scale_int,omitempty"`
	XBRLFormat        string             `json:"xbrl_format,omitempty"`
	ContextID         string             `json:"context_id,omitempty"`
	FactID            string             `json:"fact_id,omitempty"`
	SourceLine        *int               `json:"source_line,omitempty"`
	OrderIndex        *float64           `json:"order_index,omitempty"`
	IsPrimary         *bool              `json:"is_primary,omitempty"`
	PeriodType        string             `json:"period_type"`
	PeriodStart       string             `json:"period_start,omitempty"`
	PeriodEnd         string             `json:"period_end,omitempty"`
	InstantDate       string             `json:"instant_date,omitempty"`
	Dimensions        map[string]string  `json:"dimensions,omitempty"`
}

// HasDimensions reports whether the fact is dimensionally qualified.
// Undimensioned facts are the consolidated company-wide totals.
func (f *RawFact) HasDimensions() bool {
	return len(f.Dimensions) > 0
}

// RawRelationships holds the XBRL-extracted linkbase arcs, keyed by concept
// name (resolution to concept ids happens in the loader).
type RawRelationships struct {
	Calculation  []RawCalculationRel  `json:"calculation,omitempty"`
	Presentation []RawPresentationRel `json:"presentation,omitempty"`
	Footnotes    []RawFootnote        `json:"footnotes,omitempty"`
}

// RawCalculationRel is a calculation arc: parent = Σ (weight × child).
type RawCalculationRel struct {
	Parent     string  `json:"parent"`
	Child      string  `json:"child"`
	Weight     float64 `json:"weight"`
	OrderIndex float64 `json:"order_index,omitempty"`
	Arcrole    string  `json:"arcrole,omitempty"`
	RoleURI    string  `json:"role_uri,omitempty"`
}

// RawPresentationRel is a presentation arc with display ordering.
type RawPresentationRel struct {
	Parent         string  `json:"parent,omitempty"`
	Child          string  `json:"child"`
	OrderIndex     float64 `json:"order_index,omitempty"`
	PreferredLabel string  `json:"preferred_label,omitempty"`
	RoleURI        string  `json:"role_uri,omitempty"`
	Arcrole        string  `json:"arcrole,omitempty"`
}

// RawFootnote links a fact context to footnote text.
type RawFootnote struct {
	ContextID string `json:"context_id,omitempty"`
	FactID    string `json:"fact_id,omitempty"`
	Text      string `json:"text"`
}
