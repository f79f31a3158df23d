package model

import "time"

// AvailabilityStatus is derived from a reviewer profile and an instant
type AvailabilityStatus string

const (
	AvailabilityAvailable    AvailabilityStatus = "available"
	AvailabilityOutsideHours AvailabilityStatus = "outside_hours"
	AvailabilityUnavailable  AvailabilityStatus = "unavailable"
)

// PerformanceBucket classifies a composite performance score
type PerformanceBucket string

const (
	PerformanceExcellent        PerformanceBucket = "excellent"
	PerformanceGood             PerformanceBucket = "good"
	PerformanceSatisfactory     PerformanceBucket = "satisfactory"
	PerformanceNeedsImprovement PerformanceBucket = "needs_improvement"
	PerformancePoor             PerformanceBucket = "poor"
)

// ReviewerProfile represents a reviewer known to the directory
type ReviewerProfile struct {
	ID           string       `json:"id" yaml:"id"`
	Name         string       `json:"name,omitempty" yaml:"name,omitempty"`
	Email        string       `json:"email,omitempty" yaml:"email,omitempty"`
	Roles        []string     `json:"roles" yaml:"roles"`
	Expertise    []string     `json:"expertise,omitempty" yaml:"expertise,omitempty"`
	Availability Availability `json:"availability" yaml:"availability"`
	Metrics      Metrics      `json:"metrics" yaml:"metrics"`
	IsActive     bool         `json:"isActive" yaml:"isActive"`
	// LastContactAt is the last time the reviewer received an assignment
	LastContactAt *time.Time `json:"lastContactAt,omitempty" yaml:"lastContactAt,omitempty"`
}

// Availability describes when a reviewer works
type Availability struct {
	Timezone             string       `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	WorkingHours         WorkingHours `json:"workingHours" yaml:"workingHours"`
	WorkingDays          []string     `json:"workingDays,omitempty" yaml:"workingDays,omitempty"`
	BlackoutDates        []string     `json:"blackoutDates,omitempty" yaml:"blackoutDates,omitempty"`
	MaxConcurrentReviews int          `json:"maxConcurrentReviews" yaml:"maxConcurrentReviews"`
}

// WorkingHours is a daily window in HH:MM local time, end exclusive
type WorkingHours struct {
	Start string `json:"start,omitempty" yaml:"start,omitempty"`
	End   string `json:"end,omitempty" yaml:"end,omitempty"`
}

// Metrics are rolling reviewer statistics
type Metrics struct {
	CompletedReviews       int     `json:"completedReviews" yaml:"completedReviews"`
	OnTimeReviews          int     `json:"onTimeReviews" yaml:"onTimeReviews"`
	AverageReviewTimeHours float64 `json:"averageReviewTimeHours" yaml:"averageReviewTimeHours"`
	AverageQualityScore    float64 `json:"averageQualityScore" yaml:"averageQualityScore"`
	AverageFeedbackQuality float64 `json:"averageFeedbackQuality" yaml:"averageFeedbackQuality"`
	AverageThoroughness    float64 `json:"averageThoroughness" yaml:"averageThoroughness"`
	// OnTimeRate is a fraction in [0,1]
	OnTimeRate float64 `json:"onTimeRate" yaml:"onTimeRate"`
}

// HasRole reports whether the reviewer holds role.
func (r *ReviewerProfile) HasRole(role string) bool {
	return contains(r.Roles, role)
}

// HasExpertise reports whether the reviewer's expertise intersects tags.
// An empty tag list matches everyone.
func (r *ReviewerProfile) HasExpertise(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, tag := range tags {
		if contains(r.Expertise, tag) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (r *ReviewerProfile) Clone() *ReviewerProfile {
	if r == nil {
		return nil
	}
	ret := *r
	ret.Roles = append([]string(nil), r.Roles...)
	ret.Expertise = append([]string(nil), r.Expertise...)
	ret.Availability.WorkingDays = append([]string(nil), r.Availability.WorkingDays...)
	ret.Availability.BlackoutDates = append([]string(nil), r.Availability.BlackoutDates...)
	ret.LastContactAt = cloneTime(r.LastContactAt)
	return &ret
}

func contains(values []string, value string) bool {
	for _, candidate := range values {
		if candidate == value {
			return true
		}
	}
	return false
}
