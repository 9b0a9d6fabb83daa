package summary

import (
	"context"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"jobhunt/pkg/domain"
)

// Summary holds the dashboard counters.
type Summary struct {
	TotalApplications int                      `json:"total_applications"`
	LinkedInContacts  int                      `json:"linkedin_contacts"`
	ColdEmails        int                      `json:"cold_emails"`
	ReplyRate         int                      `json:"reply_rate"`
	ByStatus          map[domain.JobStatus]int `json:"by_status"`
}

// Counts are the totals read with count-only queries.
type Counts struct {
	Jobs     int
	LinkedIn int
	Emails   int
}

// Compute derives the summary. The reply rate is the share of applications
// at Interview or Offer over the job count, as a whole percent; it is zero
// when there are no applications.
func Compute(counts Counts, jobs []domain.Job) Summary {
	byStatus := make(map[domain.JobStatus]int, len(domain.JobStatuses))
	for _, status := range domain.JobStatuses {
		byStatus[status] = 0
	}
	replied := 0
	for _, job := range jobs {
		byStatus[job.Status]++
		if job.Status.Replied() {
			replied++
		}
	}
	return Summary{
		TotalApplications: counts.Jobs,
		LinkedInContacts:  counts.LinkedIn,
		ColdEmails:        counts.Emails,
		ReplyRate:         ReplyRate(replied, counts.Jobs),
		ByStatus:          byStatus,
	}
}

// ReplyRate returns round(100 * replied / total), or 0 when total is 0.
func ReplyRate(replied, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(replied) / float64(total) * 100))
}

type jobLister interface {
	List(ctx context.Context, owner string) ([]domain.Job, error)
	Count(ctx context.Context, owner string) (int, error)
}

type counter interface {
	Count(ctx context.Context, owner string) (int, error)
}

// Service reads fresh totals and job statuses on every Load.
type Service struct {
	jobs     jobLister
	linkedIn counter
	emails   counter
}

func NewService(jobs jobLister, linkedIn, emails counter) *Service {
	return &Service{jobs: jobs, linkedIn: linkedIn, emails: emails}
}

// Load runs the four reads concurrently. An empty owner yields a zero summary.
func (s *Service) Load(ctx context.Context, owner string) (Summary, error) {
	if strings.TrimSpace(owner) == "" {
		return Compute(Counts{}, nil), nil
	}
	var (
		counts Counts
		jobs   []domain.Job
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.jobs.Count(gctx, owner)
		counts.Jobs = n
		return err
	})
	g.Go(func() error {
		n, err := s.linkedIn.Count(gctx, owner)
		counts.LinkedIn = n
		return err
	})
	g.Go(func() error {
		n, err := s.emails.Count(gctx, owner)
		counts.Emails = n
		return err
	})
	g.Go(func() error {
		list, err := s.jobs.List(gctx, owner)
		jobs = list
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return Compute(counts, jobs), nil
}
