package models

import "time"

// MaxHeadlines caps the merged headline list.
const MaxHeadlines = 50

// Headline is one feed item.
type Headline struct {
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	Link      string    `json:"link,omitempty"`
	Published time.Time `json:"published,omitempty"`
}

// Headlines is the merged list across all feeds.
type Headlines struct {
	Items       []Headline `json:"items"`
	LastUpdated time.Time  `json:"lastUpdated"`
	Valid       bool       `json:"valid"`
}

// Clone returns a copy that shares no memory with h.
func (h Headlines) Clone() Headlines {
	if h.Items != nil {
		h.Items = append([]Headline(nil), h.Items...)
	}
	return h
}
