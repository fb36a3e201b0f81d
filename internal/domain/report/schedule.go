package report

import (
	"fmt"
	"time"

	"github.com/clearledger/compliance-backend/internal/domain/errors"
)

// Frequency of a recurring report
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
)

// Schedule describes when a recurring report fires. TimeOfDay is "HH:MM"
// in the schedule's IANA timezone.
type Schedule struct {
	Frequency  Frequency    `json:"frequency"`
	DayOfWeek  time.Weekday `json:"day_of_week,omitempty"`  // weekly
	DayOfMonth int          `json:"day_of_month,omitempty"` // monthly, quarterly
	TimeOfDay  string       `json:"time_of_day"`
	Timezone   string       `json:"timezone"`
}

// Validate checks the schedule is well-formed, including the timezone.
func (s Schedule) Validate() error {
	switch s.Frequency {
	case FrequencyDaily:
	case FrequencyWeekly:
		if s.DayOfWeek < time.Sunday || s.DayOfWeek > time.Saturday {
			return errors.NewValidationError("INVALID_DAY_OF_WEEK",
				"weekly schedule requires a valid day of week")
		}
	case FrequencyMonthly, FrequencyQuarterly:
		if s.DayOfMonth < 1 || s.DayOfMonth > 31 {
			return errors.NewValidationError("INVALID_DAY_OF_MONTH",
				"monthly and quarterly schedules require day of month 1-31")
		}
	default:
		return errors.NewValidationError("INVALID_FREQUENCY",
			"frequency must be daily, weekly, monthly, or quarterly")
	}

	if _, _, err := s.parseTimeOfDay(); err != nil {
		return err
	}
	if _, err := s.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the schedule's timezone.
func (s Schedule) Location() (*time.Location, error) {
	tz := s.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errors.NewValidationError("INVALID_TIMEZONE",
			"unknown timezone "+tz).WithCause(err)
	}
	return loc, nil
}

func (s Schedule) parseTimeOfDay() (int, int, error) {
	var hour, minute int
	if _, err := fmt.Sscanf(s.TimeOfDay, "%d:%d", &hour, &minute); err != nil {
		return 0, 0, errors.NewValidationError("INVALID_TIME_OF_DAY",
			"time of day must be HH:MM").WithCause(err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, errors.NewValidationError("INVALID_TIME_OF_DAY",
			"time of day must be HH:MM within a 24-hour clock")
	}
	return hour, minute, nil
}

// effectiveDayOfMonth clamps DayOfMonth to the last day of the given
// month. A day-31 monthly schedule fires on Feb 28 (or 29): the job runs
// every month rather than silently skipping short ones.
func (s Schedule) effectiveDayOfMonth(year int, month time.Month, loc *time.Location) int {
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
	if s.DayOfMonth > lastDay {
		return lastDay
	}
	return s.DayOfMonth
}

// Matches reports whether the schedule is due at now, to within the
// scheduler's poll granularity. now is converted to the schedule's
// timezone before comparison.
func (s Schedule) Matches(now time.Time, granularity time.Duration) (bool, error) {
	loc, err := s.Location()
	if err != nil {
		return false, err
	}
	hour, minute, err := s.parseTimeOfDay()
	if err != nil {
		return false, err
	}

	local := now.In(loc)

	switch s.Frequency {
	case FrequencyWeekly:
		if local.Weekday() != s.DayOfWeek {
			return false, nil
		}
	case FrequencyMonthly:
		if local.Day() != s.effectiveDayOfMonth(local.Year(), local.Month(), loc) {
			return false, nil
		}
	case FrequencyQuarterly:
		// Fires in the first month of each quarter.
		if (int(local.Month())-1)%3 != 0 {
			return false, nil
		}
		if local.Day() != s.effectiveDayOfMonth(local.Year(), local.Month(), loc) {
			return false, nil
		}
	}

	due := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	diff := local.Sub(due)
	return diff >= 0 && diff < granularity, nil
}

// PeriodKey returns the schedule period identifier that now falls in,
// used as the at-most-one-trigger-per-period idempotency key.
func (s Schedule) PeriodKey(now time.Time) (string, error) {
	loc, err := s.Location()
	if err != nil {
		return "", err
	}
	local := now.In(loc)

	switch s.Frequency {
	case FrequencyDaily:
		return local.Format("2006-01-02"), nil
	case FrequencyWeekly:
		year, week := local.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week), nil
	case FrequencyMonthly:
		return local.Format("2006-01"), nil
	case FrequencyQuarterly:
		quarter := (int(local.Month())-1)/3 + 1
		return fmt.Sprintf("%04d-Q%d", local.Year(), quarter), nil
	default:
		return "", errors.NewValidationError("INVALID_FREQUENCY",
			"frequency must be daily, weekly, monthly, or quarterly")
	}
}
