package model

import "strings"

// Channel identifies the campaign channel a search term row came from.
type Channel string

const (
	ChannelSearch   Channel = "SEARCH"
	ChannelShopping Channel = "SHOPPING"
)

// ParseChannel normalizes a raw channel value from the API. The REST
// interface sometimes returns the enum ordinal ("2" for search, "4" for
// shopping) instead of the name; anything unrecognized defaults to search.
func ParseChannel(raw string) Channel {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "4", "SHOPPING":
		return ChannelShopping
	default:
		return ChannelSearch
	}
}

// Provenance tags a combined row with the dataset it came from.
type Provenance string

const (
	ProvenanceSearch   Provenance = "search"
	ProvenanceShopping Provenance = "shopping"
	ProvenancePMax     Provenance = "pmax"
)

// ProvenanceForChannel maps a campaign channel to its provenance tag.
func ProvenanceForChannel(ch Channel) Provenance {
	if ch == ChannelShopping {
		return ProvenanceShopping
	}
	return ProvenanceSearch
}

// Metrics holds the additive performance counters carried through every
// pipeline stage.
type Metrics struct {
	Impressions      int64   `csv:"impressions" json:"impressions"`
	Clicks           int64   `csv:"clicks" json:"clicks"`
	CostMicros       int64   `csv:"cost_micros" json:"cost_micros"`
	Conversions      float64 `csv:"conversions" json:"conversions"`
	ConversionsValue float64 `csv:"conversions_value" json:"conversions_value"`
}

// Add accumulates other into m.
func (m *Metrics) Add(other Metrics) {
	m.Impressions += other.Impressions
	m.Clicks += other.Clicks
	m.CostMicros += other.CostMicros
	m.Conversions += other.Conversions
	m.ConversionsValue += other.ConversionsValue
}

// Cost returns the spend in whole currency units.
func (m Metrics) Cost() float64 {
	return float64(m.CostMicros) / 1e6
}

// RawTermRecord is one untransformed search term row from the API.
type RawTermRecord struct {
	Term    string  `csv:"search_term"`
	Channel Channel `csv:"channel_type"`
	Metrics
}

// CategoryRecord is one search category insight row from an automated
// (Performance Max) campaign. The API reports category labels in place of
// raw term text, and withholds cost for this resource.
type CategoryRecord struct {
	Category string `csv:"search_category"`
	Campaign string `csv:"campaign_name"`
	Metrics
}

// AggregatedTerm is one unique (normalized term, channel) pair with summed
// metrics.
type AggregatedTerm struct {
	Term    string  `csv:"search_term"`
	Channel Channel `csv:"channel_type"`
	Metrics
	GroupCount int `csv:"group_count"`
}

// CombinedTerm is one row of the merged dataset. Terms are never collapsed
// across provenance: the same text appearing under two tags stays two rows.
type CombinedTerm struct {
	Term   string     `csv:"term"`
	Source Provenance `csv:"source"`
	Metrics
}

// Method records which classifier strategy produced a classification.
type Method string

const (
	MethodCache Method = "cache_hit"
	MethodRule  Method = "rule_match"
	MethodLLM   Method = "llm"
)

// Base category names. Accounts may extend the taxonomy with their own
// labels; these are the ones the rule strategies assign.
const (
	CategoryBrand      = "brand"
	CategoryCompetitor = "competitor"
	CategorySoldBrand  = "sold_brand"
	CategoryGeneric    = "generic"
)

// Classification is a category assignment with its confidence and origin.
// Confidence and method are always present together.
type Classification struct {
	Category   string
	Confidence float64
	Method     Method
}

// ClassifiedTerm is a CombinedTerm with an optional classification. A nil
// Class means the term is unclassified.
type ClassifiedTerm struct {
	CombinedTerm
	Class *Classification
}

// ClassifiedCSVRow is the flat CSV projection of a ClassifiedTerm.
type ClassifiedCSVRow struct {
	Term   string     `csv:"term"`
	Source Provenance `csv:"source"`
	Metrics
	Category   string   `csv:"category"`
	Confidence *float64 `csv:"confidence"`
	Method     string   `csv:"method"`
}

// ToRow flattens the term for CSV output. Unclassified terms render as
// category "unclassified" with empty confidence and method.
func (t ClassifiedTerm) ToRow() ClassifiedCSVRow {
	row := ClassifiedCSVRow{
		Term:     t.Term,
		Source:   t.Source,
		Metrics:  t.Metrics,
		Category: "unclassified",
	}
	if t.Class != nil {
		row.Category = t.Class.Category
		conf := t.Class.Confidence
		row.Confidence = &conf
		row.Method = string(t.Class.Method)
	}
	return row
}

// ClassifiedFromRow reverses ToRow.
func ClassifiedFromRow(row ClassifiedCSVRow) ClassifiedTerm {
	t := ClassifiedTerm{
		CombinedTerm: CombinedTerm{
			Term:    row.Term,
			Source:  row.Source,
			Metrics: row.Metrics,
		},
	}
	if row.Category != "unclassified" && row.Confidence != nil {
		t.Class = &Classification{
			Category:   row.Category,
			Confidence: *row.Confidence,
			Method:     Method(row.Method),
		}
	}
	return t
}

// NormalizeTerm lowercases a term and collapses interior whitespace. Cache
// keys and aggregation keys both use the normalized form.
func NormalizeTerm(term string) string {
	return strings.Join(strings.Fields(strings.ToLower(term)), " ")
}
