package models

import "time"

// ResumeData holds the fields pulled out of an uploaded resume PDF. Missing
// fields are left empty.
type ResumeData struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	LinkedInURL string `json:"linkedin_url"`
}

// Empty reports whether nothing could be extracted.
func (r ResumeData) Empty() bool {
	return r == ResumeData{}
}

// UserProfile is the per-user record kept in the document store.
type UserProfile struct {
	UserID       string    `json:"userId"`
	PortfolioURL string    `json:"portfolioUrl,omitempty"`
	Name         string    `json:"name,omitempty"`
	Email        string    `json:"email,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	LinkedInURL  string    `json:"linkedinUrl,omitempty"`
	StorageID    string    `json:"storageId,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}
