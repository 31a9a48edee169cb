package jobs

// Posting is a candidate job record handed over by a fetcher.
type Posting struct {
	ID       string `json:"id,omitempty"`
	Company  string `json:"company"`
	Title    string `json:"title"`
	Location string `json:"location"`
	URL      string `json:"url"`
	// PostedAt is the source-reported posting date, in any format
	// ParsePostedDate understands.
	PostedAt string `json:"posted_at,omitempty"`
	Source   string `json:"source,omitempty"`
}

// Identifier returns the explicit ID when set, otherwise the derived one.
func (p Posting) Identifier() string {
	if p.ID != "" {
		return p.ID
	}
	return DeriveID(p.Company, p.Title, p.Location, p.URL)
}
