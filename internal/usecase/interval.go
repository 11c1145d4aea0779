package usecase

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
)

// Billing intervals accepted in course pricing. Only day, week, month and
// year exist on the processor side.
const (
	IntervalDay      = "day"
	IntervalWeek     = "week"
	IntervalMonth    = "month"
	IntervalQuarter  = "quarter"
	IntervalSemiYear = "semi-year"
	IntervalYear     = "year"
)

const maxPlanIDLen = 64

// planNamespace seeds the hashed suffix of plan ids that are too long.
var planNamespace = uuid.MustParse("6f1f4e2a-1f0c-5b0e-9a57-3c2d8f1a7b10")

// NormalizeInterval maps a course interval onto a processor interval.
func NormalizeInterval(interval string, count int) (stripe.PlanInterval, int64, error) {
	if count < 1 {
		count = 1
	}
	switch strings.ToLower(strings.TrimSpace(interval)) {
	case IntervalDay:
		return stripe.PlanIntervalDay, int64(count), nil
	case IntervalWeek:
		return stripe.PlanIntervalWeek, int64(count), nil
	case IntervalMonth:
		return stripe.PlanIntervalMonth, int64(count), nil
	case IntervalQuarter:
		return stripe.PlanIntervalMonth, int64(count * 3), nil
	case IntervalSemiYear, "semiyear", "semi_year":
		return stripe.PlanIntervalMonth, int64(count * 6), nil
	case IntervalYear:
		return stripe.PlanIntervalYear, int64(count), nil
	default:
		return "", 0, fmt.Errorf("unsupported billing interval %q", interval)
	}
}

// DenormalizeInterval is the reverse of NormalizeInterval.
func DenormalizeInterval(interval stripe.PlanInterval, count int64) (string, int) {
	if count < 1 {
		count = 1
	}
	if interval == stripe.PlanIntervalMonth {
		switch {
		case count%6 == 0:
			return IntervalSemiYear, int(count / 6)
		case count%3 == 0:
			return IntervalQuarter, int(count / 3)
		}
	}
	return string(interval), int(count)
}

// addInterval moves t forward by count processor intervals.
func addInterval(t time.Time, interval stripe.PlanInterval, count int64) time.Time {
	n := int(count)
	switch interval {
	case stripe.PlanIntervalDay:
		return t.AddDate(0, 0, n)
	case stripe.PlanIntervalWeek:
		return t.AddDate(0, 0, 7*n)
	case stripe.PlanIntervalYear:
		return t.AddDate(n, 0, 0)
	default:
		return t.AddDate(0, n, 0)
	}
}

// TrialEnd returns when the first recurring charge lands: one full cycle
// after start (the initial payment covers it) plus any course trial days.
func TrialEnd(start time.Time, interval string, count, trialDays int) (time.Time, error) {
	planInterval, planCount, err := NormalizeInterval(interval, count)
	if err != nil {
		return time.Time{}, err
	}
	return addInterval(start, planInterval, planCount).AddDate(0, 0, trialDays), nil
}

// PlanID derives the processor plan id for a priced item so repeated
// purchases reuse one plan.
func PlanID(title, interval string, count, installments int, installmentAmount int64) string {
	if count < 1 {
		count = 1
	}
	id := fmt.Sprintf("%s-%s-%d", slugify(title), strings.ToLower(interval), count)
	if installments > 0 {
		id = fmt.Sprintf("%s-x%d-%d", id, installments, installmentAmount)
	}
	if len(id) > maxPlanIDLen {
		hash := uuid.NewSHA1(planNamespace, []byte(id)).String()[:8]
		id = strings.TrimRight(id[:maxPlanIDLen-9], "-") + "-" + hash
	}
	return id
}

// currencyPlanID is the variant used when the plain id exists in another
// currency.
func currencyPlanID(planID, currency string) string {
	return planID + "-" + strings.ToLower(currency)
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		return "course"
	}
	return slug
}
