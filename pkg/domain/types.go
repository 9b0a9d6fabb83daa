package domain

import (
	"strings"
	"time"
)

// Table names in the hosted data store.
const (
	TableJobs     = "jobs"
	TableLinkedIn = "networking_linkedin"
	TableEmails   = "networking_email"
)

type JobStatus string

const (
	JobApplied   JobStatus = "Applied"
	JobInterview JobStatus = "Interview"
	JobRejected  JobStatus = "Rejected"
	JobOffer     JobStatus = "Offer"
)

// JobStatuses lists job statuses in pipeline order.
var JobStatuses = []JobStatus{JobApplied, JobInterview, JobRejected, JobOffer}

func (s JobStatus) Valid() bool {
	switch s {
	case JobApplied, JobInterview, JobRejected, JobOffer:
		return true
	}
	return false
}

// Replied reports whether the application got a response from the company.
func (s JobStatus) Replied() bool {
	return s == JobInterview || s == JobOffer
}

type LinkedInStatus string

const (
	LinkedInMessageSent LinkedInStatus = "Message Sent"
	LinkedInReplied     LinkedInStatus = "Replied"
	LinkedInGhosted     LinkedInStatus = "Ghosted"
)

func (s LinkedInStatus) Valid() bool {
	switch s {
	case LinkedInMessageSent, LinkedInReplied, LinkedInGhosted:
		return true
	}
	return false
}

type EmailStatus string

const (
	EmailSent    EmailStatus = "Sent"
	EmailReplied EmailStatus = "Replied"
	EmailGhosted EmailStatus = "Ghosted"
)

func (s EmailStatus) Valid() bool {
	switch s {
	case EmailSent, EmailReplied, EmailGhosted:
		return true
	}
	return false
}

const (
	DefaultJobStatus      = JobApplied
	DefaultJobScore       = 5
	DefaultLinkedInStatus = LinkedInMessageSent
	DefaultEmailStatus    = EmailSent
)

// User is the identity reported by the auth service.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is an authenticated session issued by the auth service.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// Expired reports whether the access token is expired, or expires within skew.
func (s Session) Expired(now time.Time, skew time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(s.ExpiresAt)
}

// Entity is a row owned by exactly one user.
type Entity interface {
	EntityID() string
	OwnerID() string
	SearchText() string
}

// Fields is the validated input for creating or replacing an entity.
// Values never includes id, user_id or timestamps.
type Fields interface {
	Validate() error
	Values() map[string]any
}

type Job struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Company          string    `json:"company"`
	Role             string    `json:"role"`
	JobDescription   string    `json:"job_description,omitempty"`
	ResumeVersion    string    `json:"resume_version,omitempty"`
	DateApplied      Date      `json:"date_applied"`
	Status           JobStatus `json:"status"`
	ProbabilityScore *int      `json:"probability_score,omitempty"`
	Link             string    `json:"link,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (j Job) EntityID() string   { return j.ID }
func (j Job) OwnerID() string    { return j.UserID }
func (j Job) SearchText() string { return j.Company + " " + j.Role }

// Fields returns the editable fields of j, used to prefill an edit form.
func (j Job) Fields() JobFields {
	f := JobFields{
		Company:        j.Company,
		Role:           j.Role,
		JobDescription: j.JobDescription,
		ResumeVersion:  j.ResumeVersion,
		DateApplied:    j.DateApplied.String(),
		Status:         j.Status,
		Link:           j.Link,
	}
	if j.ProbabilityScore != nil {
		score := *j.ProbabilityScore
		f.ProbabilityScore = &score
	}
	return f
}

type LinkedInContact struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	ContactName  string         `json:"contact_name"`
	ContactRole  string         `json:"contact_role,omitempty"`
	Company      string         `json:"company,omitempty"`
	ProfileURL   string         `json:"profile_url,omitempty"`
	ReferralRole string         `json:"referral_role,omitempty"`
	Status       LinkedInStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (c LinkedInContact) EntityID() string   { return c.ID }
func (c LinkedInContact) OwnerID() string    { return c.UserID }
func (c LinkedInContact) SearchText() string { return c.ContactName + " " + c.Company }

func (c LinkedInContact) Fields() LinkedInFields {
	return LinkedInFields{
		ContactName:  c.ContactName,
		ContactRole:  c.ContactRole,
		Company:      c.Company,
		ProfileURL:   c.ProfileURL,
		ReferralRole: c.ReferralRole,
		Status:       c.Status,
	}
}

type ColdEmail struct {
	ID           string      `json:"id"`
	UserID       string      `json:"user_id"`
	ContactName  string      `json:"contact_name"`
	ContactEmail string      `json:"contact_email"`
	Company      string      `json:"company,omitempty"`
	ContactRole  string      `json:"contact_role,omitempty"`
	ReferralRole string      `json:"referral_role,omitempty"`
	Status       EmailStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func (e ColdEmail) EntityID() string { return e.ID }
func (e ColdEmail) OwnerID() string  { return e.UserID }
func (e ColdEmail) SearchText() string {
	return strings.Join([]string{e.ContactName, e.ContactEmail, e.Company}, " ")
}

func (e ColdEmail) Fields() EmailFields {
	return EmailFields{
		ContactName:  e.ContactName,
		ContactEmail: e.ContactEmail,
		Company:      e.Company,
		ContactRole:  e.ContactRole,
		ReferralRole: e.ReferralRole,
		Status:       e.Status,
	}
}

// Matches reports whether e matches a case-insensitive substring query.
// An empty query matches everything.
func Matches(e Entity, query string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(e.SearchText()), query)
}
