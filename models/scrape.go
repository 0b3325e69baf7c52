package models

// Link is an anchor found on a scraped page.
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// Heading is an h1-h4 element found on a scraped page.
type Heading struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

// ScrapeResult is the normalized output of every scraper adapter.
type ScrapeResult struct {
	URL             string    `json:"url"`
	Platform        string    `json:"platform"`
	Title           string    `json:"title"`
	MetaDescription string    `json:"meta_description"`
	Text            string    `json:"text_content"`
	FullTextLength  int       `json:"full_text_length"`
	Headings        []Heading `json:"headings"`
	Links           []Link    `json:"links"`
	ProjectLinks    []string  `json:"project_links,omitempty"`
	TotalImages     int       `json:"total_images"`
}
