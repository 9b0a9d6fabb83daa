package domain

import (
	"net/mail"
	"net/url"
	"strings"
)

const (
	MinJobScore = 1
	MaxJobScore = 10
)

// JobFields is the input for a job application. Blank optional fields are stored as null.
type JobFields struct {
	Company          string    `json:"company"`
	Role             string    `json:"role"`
	JobDescription   string    `json:"job_description"`
	ResumeVersion    string    `json:"resume_version"`
	DateApplied      string    `json:"date_applied"`
	Status           JobStatus `json:"status"`
	ProbabilityScore *int      `json:"probability_score"`
	Link             string    `json:"link"`
}

func (f JobFields) Validate() error {
	if blank(f.Company) {
		return invalid("company", "is required")
	}
	if blank(f.Role) {
		return invalid("role", "is required")
	}
	if f.Status != "" && !f.Status.Valid() {
		return invalid("status", "must be one of Applied, Interview, Rejected, Offer")
	}
	if f.ProbabilityScore != nil && (*f.ProbabilityScore < MinJobScore || *f.ProbabilityScore > MaxJobScore) {
		return invalid("probability_score", "must be between 1 and 10")
	}
	if !blank(f.DateApplied) {
		if _, err := ParseDate(f.DateApplied); err != nil {
			return invalid("date_applied", "must be a date in YYYY-MM-DD form")
		}
	}
	if !blank(f.Link) && !isWebURL(f.Link) {
		return invalid("link", "must be an http or https URL")
	}
	return nil
}

func (f JobFields) Values() map[string]any {
	status := f.Status
	if status == "" {
		status = DefaultJobStatus
	}
	score := DefaultJobScore
	if f.ProbabilityScore != nil {
		score = *f.ProbabilityScore
	}
	return map[string]any{
		"company":           strings.TrimSpace(f.Company),
		"role":              strings.TrimSpace(f.Role),
		"job_description":   optionalText(f.JobDescription),
		"resume_version":    nullable(f.ResumeVersion),
		"date_applied":      nullable(f.DateApplied),
		"status":            string(status),
		"probability_score": score,
		"link":              nullable(f.Link),
	}
}

// LinkedInFields is the input for a LinkedIn networking contact.
type LinkedInFields struct {
	ContactName  string         `json:"contact_name"`
	ContactRole  string         `json:"contact_role"`
	Company      string         `json:"company"`
	ProfileURL   string         `json:"profile_url"`
	ReferralRole string         `json:"referral_role"`
	Status       LinkedInStatus `json:"status"`
}

func (f LinkedInFields) Validate() error {
	if blank(f.ContactName) {
		return invalid("contact_name", "is required")
	}
	if f.Status != "" && !f.Status.Valid() {
		return invalid("status", "must be one of Message Sent, Replied, Ghosted")
	}
	if !blank(f.ProfileURL) && !isWebURL(f.ProfileURL) {
		return invalid("profile_url", "must be an http or https URL")
	}
	return nil
}

func (f LinkedInFields) Values() map[string]any {
	status := f.Status
	if status == "" {
		status = DefaultLinkedInStatus
	}
	return map[string]any{
		"contact_name":  strings.TrimSpace(f.ContactName),
		"contact_role":  nullable(f.ContactRole),
		"company":       nullable(f.Company),
		"profile_url":   nullable(f.ProfileURL),
		"referral_role": nullable(f.ReferralRole),
		"status":        string(status),
	}
}

// EmailFields is the input for a cold email contact.
type EmailFields struct {
	ContactName  string      `json:"contact_name"`
	ContactEmail string      `json:"contact_email"`
	Company      string      `json:"company"`
	ContactRole  string      `json:"contact_role"`
	ReferralRole string      `json:"referral_role"`
	Status       EmailStatus `json:"status"`
}

func (f EmailFields) Validate() error {
	if blank(f.ContactName) {
		return invalid("contact_name", "is required")
	}
	if blank(f.ContactEmail) {
		return invalid("contact_email", "is required")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(f.ContactEmail)); err != nil {
		return invalid("contact_email", "must be a valid email address")
	}
	if f.Status != "" && !f.Status.Valid() {
		return invalid("status", "must be one of Sent, Replied, Ghosted")
	}
	return nil
}

func (f EmailFields) Values() map[string]any {
	status := f.Status
	if status == "" {
		status = DefaultEmailStatus
	}
	return map[string]any{
		"contact_name":  strings.TrimSpace(f.ContactName),
		"contact_email": strings.TrimSpace(f.ContactEmail),
		"company":       nullable(f.Company),
		"contact_role":  nullable(f.ContactRole),
		"referral_role": nullable(f.ReferralRole),
		"status":        string(status),
	}
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func nullable(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}

// optionalText keeps free text as entered; blank text is stored as null.
func optionalText(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func isWebURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
