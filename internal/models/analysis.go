package models

// SimilarListing references a published listing the analyzer considers a
// likely duplicate of a candidate. Similarity is in (0,1].
type SimilarListing struct {
	ListingID  string  `json:"listingId"`
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity"`
}

// AnalysisReport is the advisory output of one analyzer run. Reports are
// ephemeral: a superseded report is discarded, never merged. A nil
// QualityScore means the analyzer degraded and no score is available.
type AnalysisReport struct {
	QualityScore *float64         `json:"qualityScore,omitempty"`
	Issues       []string         `json:"issues,omitempty"`
	Suggestions  []string         `json:"suggestions,omitempty"`
	Similar      []SimilarListing `json:"similarListings,omitempty"`
}

// Score returns the quality score, or the neutral 0.5 when unset.
func (r *AnalysisReport) Score() float64 {
	if r == nil || r.QualityScore == nil {
		return 0.5
	}
	return *r.QualityScore
}
