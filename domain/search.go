package domain

type Confidence string

const (
	ConfidenceExact   Confidence = "exact"
	ConfidenceMapping Confidence = "mapping"
	ConfidenceFuzzy   Confidence = "fuzzy"
)

// StockHit is a stock entry joined with the pharmacy holding it.
type StockHit struct {
	Stock    StockEntry
	Pharmacy PharmacyLocation
}

type SearchResult struct {
	StockID          int64        `json:"id"`
	MedicineName     string       `json:"name"`
	PharmacyName     string       `json:"pharmacy"`
	Price            *float64     `json:"price"`
	Address          string       `json:"location"`
	Phone            string       `json:"phone"`
	PharmacyLocation *Coordinates `json:"coordinates"`
	DistanceKm       *float64     `json:"dist"`
	IsAlternative    bool         `json:"is_alternative"`
	OriginalSearch   string       `json:"original_search,omitempty"`
	Confidence       Confidence   `json:"confidence"`
}
