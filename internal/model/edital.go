package model

import "time"

// RawItem is one procurement notice exactly as the upstream search API
// returned it. Its keys drift between API versions.
type RawItem map[string]any

// Record is the normalized, export-ready form of a RawItem.
type Record struct {
	City                string `json:"city"`
	RegionCode          string `json:"region_code"`
	Title               string `json:"title"`
	Description         string `json:"description"`
	DetailURL           string `json:"detail_url"`
	ProcurementModality string `json:"procurement_modality"`
	Kind                string `json:"kind"`
	DocumentType        string `json:"document_type"`
	IssuingBody         string `json:"issuing_body"`
	IssuingUnit         string `json:"issuing_unit"`
	GovernmentTier      string `json:"government_tier"`
	PublishedAt         string `json:"published_at"`
	ProposalDeadline    string `json:"proposal_deadline"`
	ProcessNumber       string `json:"process_number"`
	StatusLabel         string `json:"status_label"`

	// EstimatedValue is nil when the upstream value is absent or unparseable.
	EstimatedValue *float64 `json:"estimated_value"`

	SourceMunicipalityCode string `json:"source_municipality_code"`

	// Published is the parsed PublishedAt; zero when unparseable.
	Published     time.Time `json:"-"`
	ControlNumber string    `json:"-"`
}

// HasLink reports whether the record can offer an "open" action.
func (r Record) HasLink() bool {
	return r.DetailURL != ""
}

// ShardQuery selects one unit of collection against the search API.
type ShardQuery struct {
	MunicipalityCode string
	Status           string
	DocumentType     string
	Ordering         string
	PageSize         int
}

// ShardWarning names a municipality whose collection failed during a search.
type ShardWarning struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// SearchResult is the outcome of one search run.
type SearchResult struct {
	Signature  string         `json:"signature"`
	Records    []Record       `json:"records"`
	Warnings   []ShardWarning `json:"warnings"`
	Selections []Selection    `json:"municipios"`
	FetchedAt  time.Time      `json:"fetched_at"`
	Collected  int            `json:"collected"` // items before filtering
}
