package directory

import (
	"strings"
	"time"

	"github.com/viant/revflow/model"
)

const dateLayout = "2006-01-02"

// AvailabilityStatus derives the reviewer availability at instant at. It is
// a pure function of the profile and the instant.
//
// An empty WorkingDays list means every day; an empty working hours window
// means all day. Windows whose end precedes start wrap past midnight.
func AvailabilityStatus(profile *model.ReviewerProfile, at time.Time) model.AvailabilityStatus {
	availability := profile.Availability
	local := at.In(location(availability.Timezone))
	if len(availability.WorkingDays) > 0 && !isWorkingDay(availability.WorkingDays, local.Weekday()) {
		return model.AvailabilityUnavailable
	}
	today := local.Format(dateLayout)
	for _, blackout := range availability.BlackoutDates {
		if strings.TrimSpace(blackout) == today {
			return model.AvailabilityUnavailable
		}
	}
	if !withinHours(availability.WorkingHours, local) {
		return model.AvailabilityOutsideHours
	}
	return model.AvailabilityAvailable
}

func location(timezone string) *time.Location {
	if timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func isWorkingDay(days []string, weekday time.Weekday) bool {
	name := strings.ToLower(weekday.String())
	for _, day := range days {
		day = strings.ToLower(strings.TrimSpace(day))
		if day == name || (len(day) == 3 && strings.HasPrefix(name, day)) {
			return true
		}
	}
	return false
}

func withinHours(hours model.WorkingHours, local time.Time) bool {
	start, okStart := minuteOfDay(hours.Start)
	end, okEnd := minuteOfDay(hours.End)
	if !okStart || !okEnd || start == end {
		return true
	}
	now := local.Hour()*60 + local.Minute()
	if start < end {
		return now >= start && now < end
	}
	return now >= start || now < end
}

func minuteOfDay(clock string) (int, bool) {
	if clock == "" {
		return 0, false
	}
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
