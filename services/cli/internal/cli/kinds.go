package cli

import (
	"flag"
	"strconv"
	"strings"

	"jobhunt/pkg/domain"
	"jobhunt/pkg/repository"
	"jobhunt/pkg/textutil"
	"jobhunt/pkg/view"
)

// kind describes how one entity table is edited and printed.
type kind[E view.Row[F], F domain.Fields] struct {
	name     string
	repo     repository.Repository[E, F]
	defaults F
	bind     func(fs *flag.FlagSet, f *F)
	header   []string
	row      func(E) []string
}

func jobKind(repo repository.Repository[domain.Job, domain.JobFields]) kind[domain.Job, domain.JobFields] {
	score := domain.DefaultJobScore
	return kind[domain.Job, domain.JobFields]{
		name:     "jobs",
		repo:     repo,
		defaults: domain.JobFields{Status: domain.DefaultJobStatus, ProbabilityScore: &score},
		bind: func(fs *flag.FlagSet, f *domain.JobFields) {
			fs.StringVar(&f.Company, "company", f.Company, "company name (required)")
			fs.StringVar(&f.Role, "role", f.Role, "role title (required)")
			fs.StringVar(&f.JobDescription, "description", f.JobDescription, "job description, stored as given")
			fs.Var(htmlFlag{&f.JobDescription}, "description-html", "job description as HTML, reduced to plain text")
			fs.StringVar(&f.ResumeVersion, "resume", f.ResumeVersion, "resume version sent")
			fs.StringVar(&f.DateApplied, "date", f.DateApplied, "date applied, YYYY-MM-DD")
			fs.Var(textFlag[domain.JobStatus]{&f.Status}, "status", "Applied, Interview, Rejected or Offer")
			fs.Var(optionalIntFlag{&f.ProbabilityScore}, "score", "probability score 1-10")
			fs.StringVar(&f.Link, "link", f.Link, "posting URL")
		},
		header: []string{"ID", "COMPANY", "ROLE", "STATUS", "SCORE", "APPLIED"},
		row: func(j domain.Job) []string {
			score := ""
			if j.ProbabilityScore != nil {
				score = strconv.Itoa(*j.ProbabilityScore)
			}
			return []string{j.ID, j.Company, j.Role, string(j.Status), score, j.DateApplied.String()}
		},
	}
}

func linkedInKind(repo repository.Repository[domain.LinkedInContact, domain.LinkedInFields]) kind[domain.LinkedInContact, domain.LinkedInFields] {
	return kind[domain.LinkedInContact, domain.LinkedInFields]{
		name:     "linkedin",
		repo:     repo,
		defaults: domain.LinkedInFields{Status: domain.DefaultLinkedInStatus},
		bind: func(fs *flag.FlagSet, f *domain.LinkedInFields) {
			fs.StringVar(&f.ContactName, "name", f.ContactName, "contact name (required)")
			fs.StringVar(&f.ContactRole, "contact-role", f.ContactRole, "contact's role")
			fs.StringVar(&f.Company, "company", f.Company, "company")
			fs.StringVar(&f.ProfileURL, "profile", f.ProfileURL, "profile URL")
			fs.StringVar(&f.ReferralRole, "referral-role", f.ReferralRole, "role asked about")
			fs.Var(textFlag[domain.LinkedInStatus]{&f.Status}, "status", "Message Sent, Replied or Ghosted")
		},
		header: []string{"ID", "NAME", "COMPANY", "ROLE", "STATUS"},
		row: func(c domain.LinkedInContact) []string {
			return []string{c.ID, c.ContactName, c.Company, c.ContactRole, string(c.Status)}
		},
	}
}

func emailKind(repo repository.Repository[domain.ColdEmail, domain.EmailFields]) kind[domain.ColdEmail, domain.EmailFields] {
	return kind[domain.ColdEmail, domain.EmailFields]{
		name:     "emails",
		repo:     repo,
		defaults: domain.EmailFields{Status: domain.DefaultEmailStatus},
		bind: func(fs *flag.FlagSet, f *domain.EmailFields) {
			fs.StringVar(&f.ContactName, "name", f.ContactName, "contact name (required)")
			fs.StringVar(&f.ContactEmail, "email", f.ContactEmail, "contact email (required)")
			fs.StringVar(&f.Company, "company", f.Company, "company")
			fs.StringVar(&f.ContactRole, "contact-role", f.ContactRole, "contact's role")
			fs.StringVar(&f.ReferralRole, "referral-role", f.ReferralRole, "role asked about")
			fs.Var(textFlag[domain.EmailStatus]{&f.Status}, "status", "Sent, Replied or Ghosted")
		},
		header: []string{"ID", "NAME", "EMAIL", "COMPANY", "STATUS"},
		row: func(e domain.ColdEmail) []string {
			return []string{e.ID, e.ContactName, e.ContactEmail, e.Company, string(e.Status)}
		},
	}
}

// textFlag sets a named string type.
type textFlag[T ~string] struct{ p *T }

func (v textFlag[T]) String() string {
	if v.p == nil {
		return ""
	}
	return string(*v.p)
}

func (v textFlag[T]) Set(s string) error {
	*v.p = T(strings.TrimSpace(s))
	return nil
}

// htmlFlag stores the plain-text rendering of an HTML value.
type htmlFlag struct{ p *string }

func (v htmlFlag) String() string {
	if v.p == nil {
		return ""
	}
	return *v.p
}

func (v htmlFlag) Set(s string) error {
	*v.p = textutil.PlainText(s)
	return nil
}

// optionalIntFlag sets an optional int; an empty value clears it.
type optionalIntFlag struct{ p **int }

func (v optionalIntFlag) String() string {
	if v.p == nil || *v.p == nil {
		return ""
	}
	return strconv.Itoa(**v.p)
}

func (v optionalIntFlag) Set(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*v.p = nil
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*v.p = &n
	return nil
}
