package store

import (
	"time"

	"gorm.io/datatypes"

	"jobhunt/pkg/domain"
)

// GORM models mirroring the hosted schema. They are used for migrations and
// for scoping deletes and counts; reads and writes go through column maps.
type JobModel struct {
	ID               string `gorm:"type:uuid;primaryKey"`
	UserID           string `gorm:"type:uuid;not null;index"`
	Company          string `gorm:"not null"`
	Role             string `gorm:"not null"`
	JobDescription   *string
	ResumeVersion    *string
	DateApplied      *datatypes.Date
	Status           string `gorm:"not null;default:Applied"`
	ProbabilityScore *int
	Link             *string
	CreatedAt        time.Time `gorm:"not null;index"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (JobModel) TableName() string { return domain.TableJobs }

type LinkedInContactModel struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	UserID       string `gorm:"type:uuid;not null;index"`
	ContactName  string `gorm:"not null"`
	ContactRole  *string
	Company      *string
	ProfileURL   *string
	ReferralRole *string
	Status       string    `gorm:"not null;default:'Message Sent'"`
	CreatedAt    time.Time `gorm:"not null;index"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (LinkedInContactModel) TableName() string { return domain.TableLinkedIn }

type ColdEmailModel struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	UserID       string `gorm:"type:uuid;not null;index"`
	ContactName  string `gorm:"not null"`
	ContactEmail string `gorm:"not null"`
	Company      *string
	ContactRole  *string
	ReferralRole *string
	Status       string    `gorm:"not null;default:Sent"`
	CreatedAt    time.Time `gorm:"not null;index"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (ColdEmailModel) TableName() string { return domain.TableEmails }

func modelFor(table string) any {
	switch table {
	case domain.TableJobs:
		return &JobModel{}
	case domain.TableLinkedIn:
		return &LinkedInContactModel{}
	case domain.TableEmails:
		return &ColdEmailModel{}
	}
	return nil
}
