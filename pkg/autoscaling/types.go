// Package autoscaling implements three cooperating control loops: a
// dependency cascade loop, a predictive scaling loop, and a
// scaling-event observer loop. Grounded on the ticker+select+
// ctx.Done() idiom from Lens/modules/core/pkg/task/scheduler.go's
// scanLoop/staleLockCleanupLoop/oldTaskCleanupLoop, applied to three
// new cadences.
package autoscaling

import "time"

// Dependency describes a directed scaling relationship: when Service
// scales, DependsOn should be scaled proportionally by Ratio.
type Dependency struct {
	Service   string  `json:"service"`
	DependsOn string  `json:"depends_on"`
	Ratio     float64 `json:"ratio"`
}

// LoadPattern is a recurring weekly window of expected load for a
// service: dayOfWeek/hourOfDay/minuteOfHour are wildcard when nil, and
// all set fields must match the current UTC time for the window to
// apply.
type LoadPattern struct {
	Service      string  `json:"service"`
	DayOfWeek    *int    `json:"day_of_week,omitempty"`
	HourOfDay    *int    `json:"hour_of_day,omitempty"`
	MinuteOfHour *int    `json:"minute_of_hour,omitempty"`
	ExpectedLoad float64 `json:"expected_load"`
}

// matches reports whether the window applies at the given UTC time
// fields; every non-nil field must match exactly.
func (w LoadPattern) matches(dayOfWeek, hourOfDay, minuteOfHour int) bool {
	if w.DayOfWeek != nil && *w.DayOfWeek != dayOfWeek {
		return false
	}
	if w.HourOfDay != nil && *w.HourOfDay != hourOfDay {
		return false
	}
	if w.MinuteOfHour != nil && *w.MinuteOfHour != minuteOfHour {
		return false
	}
	return true
}

// Prediction is the predictive loop's hourly output: the replica
// count it expects a service to need ahead of demand. A prediction is
// applied at most once; Applied implies AppliedAt is set.
type Prediction struct {
	Service           string     `json:"service"`
	GeneratedAt       time.Time  `json:"generated_at"`
	CurrentReplicas   int32      `json:"current_replicas"`
	PredictedReplicas int32      `json:"predicted_replicas"`
	Confidence        float64    `json:"confidence"`
	Applied           bool       `json:"applied"`
	AppliedAt         *time.Time `json:"applied_at,omitempty"`
}

// Event records a scaling action, written by the observer and the
// dependency loop for audit.
type Event struct {
	Service      string    `json:"service"`
	Namespace    string    `json:"namespace"`
	Direction    string    `json:"direction"` // up, down, limited-scale, no-scale
	FromReplicas int32     `json:"from_replicas"`
	ToReplicas   int32     `json:"to_replicas"`
	Available    int32     `json:"available"`

	MetricKind      string `json:"metric_kind,omitempty"`
	MetricName      string `json:"metric_name,omitempty"`
	MetricValue     string `json:"metric_value,omitempty"`
	MetricThreshold string `json:"metric_threshold,omitempty"`

	ObservedAt time.Time `json:"observed_at"`
}

const (
	ScaleDirectionUp      = "up"
	ScaleDirectionDown    = "down"
	ScaleDirectionLimited = "limited-scale"
	ScaleDirectionNone    = "no-scale"
)
