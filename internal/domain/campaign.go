package domain

import (
	"fmt"
	"time"
)

// CampaignStatus is the lifecycle state of a Campaign.
type CampaignStatus string

const (
	CampaignPending    CampaignStatus = "PENDING"
	CampaignInProgress CampaignStatus = "IN_PROGRESS"
	CampaignCompleted  CampaignStatus = "COMPLETED"
	CampaignFailed     CampaignStatus = "FAILED"
	CampaignArchived   CampaignStatus = "ARCHIVED"
)

// Campaign is the aggregate root: a user-defined extraction job scoped by
// activity and geography. Value-typed fields are immutable; every mutating
// method returns a new Campaign rather than mutating the receiver in place.
type Campaign struct {
	ID             ID
	Title          string
	Activity       string
	CountryCode    string
	Admin1Code     string
	Admin2Code     string
	CityGeonameID  int64
	LocationName   string
	ISOLanguage    string
	Locale         string
	MaxResults     int
	MinRating      float64
	MinPopulation  int64
	MaxBots        int
	TotalTasks     int
	CompletedTasks int
	FailedTasks    int
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	Status         CampaignStatus
}

// GenerateTitle derives the auto-generated campaign title from the activity
// and the resolved location snapshot.
func GenerateTitle(activity, locationName string) string {
	return fmt.Sprintf("%s in %s", activity, locationName)
}

// CanStart reports whether the campaign may transition PENDING -> IN_PROGRESS.
func (c Campaign) CanStart() bool { return c.Status == CampaignPending }

// CanResume reports whether the campaign may transition FAILED -> IN_PROGRESS.
func (c Campaign) CanResume() bool { return c.Status == CampaignFailed }

// CanArchive reports whether the campaign may transition to ARCHIVED.
func (c Campaign) CanArchive() bool {
	return c.Status == CampaignCompleted || c.Status == CampaignFailed || c.Status == CampaignArchived
}

// WithStatus returns a copy of c with Status replaced.
func (c Campaign) WithStatus(s CampaignStatus) Campaign {
	c.Status = s
	return c
}

// Validate enforces the invariants that must hold before a campaign is
// persisted: max_bots >= 1, total/completed/failed counters are consistent.
func (c Campaign) Validate() error {
	if c.Activity == "" {
		return NewValidationError("activity is required")
	}
	if c.CountryCode == "" {
		return NewValidationError("country_code is required")
	}
	if c.MaxBots <= 0 {
		return NewValidationError("max_bots must be >= 1")
	}
	if c.CompletedTasks+c.FailedTasks > c.TotalTasks {
		return NewValidationError("completed_tasks + failed_tasks must not exceed total_tasks")
	}
	return nil
}

// DefaultMaxBots is used when a campaign spec omits max_bots.
const DefaultMaxBots = 3

// DefaultRetryBudget caps the total attempts per task: after a Transient
// failure a task is requeued only while its attempt count is below it.
const DefaultRetryBudget = 2

// DefaultPoolInitBudget bounds bot-pool session creation retries.
const DefaultPoolInitBudget = 3
