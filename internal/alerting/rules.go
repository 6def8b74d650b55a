package alerting

import (
	"slices"
	"time"

	"github.com/kozaktomas/faceguard/internal/coredata"
	"github.com/kozaktomas/faceguard/internal/resolver"
)

// RecognitionEvent is one processed sighting handed to the decision engine.
// Match is nil for an unknown person.
type RecognitionEvent struct {
	SightingID string
	CameraID   string
	Timestamp  time.Time
	Confidence float64
	Match      *resolver.PersonMatch
}

// subjectID returns the cooldown subject for the event. Unknown persons share
// a single subject so unknown-sighting rules still rate limit.
func (e *RecognitionEvent) subjectID() string {
	if e.Match != nil {
		return e.Match.PersonID
	}
	return "unknown"
}

// matchesRule tests a rule's trigger conditions against an event. Every
// configured condition must pass; unset conditions pass by default.
func matchesRule(rule *coredata.AlertRule, event *RecognitionEvent) bool {
	cond := &rule.TriggerConditions

	personID := ""
	if event.Match != nil {
		personID = event.Match.PersonID
	}

	if personID != "" && slices.Contains(cond.ExcludedPersons, personID) {
		return false
	}
	if cond.AnyPerson {
		if personID == "" {
			return false
		}
	} else if len(cond.PersonIDs) > 0 {
		if !slices.Contains(cond.PersonIDs, personID) {
			return false
		}
	}

	if len(cond.CameraIDs) > 0 && !slices.Contains(cond.CameraIDs, event.CameraID) {
		return false
	}

	if cond.ConfidenceMin > 0 && event.Confidence < cond.ConfidenceMin {
		return false
	}
	if cond.ConfidenceMax > 0 && event.Confidence > cond.ConfidenceMax {
		return false
	}

	if cond.MinMatchingEmbeddings > 0 {
		if event.Match == nil || event.Match.MatchingEmbeddingCount < cond.MinMatchingEmbeddings {
			return false
		}
	}

	if len(cond.TimeRanges) > 0 && !inAnyTimeRange(cond.TimeRanges, event.Timestamp) {
		return false
	}

	return true
}

// inAnyTimeRange reports whether the event hour falls inside any configured
// window. A range with StartHour > EndHour wraps past midnight.
func inAnyTimeRange(ranges []coredata.TimeRange, ts time.Time) bool {
	hour := ts.UTC().Hour()
	for _, r := range ranges {
		if r.StartHour <= r.EndHour {
			if hour >= r.StartHour && hour < r.EndHour {
				return true
			}
		} else {
			if hour >= r.StartHour || hour < r.EndHour {
				return true
			}
		}
	}
	return false
}

// escalatedPriority bumps a priority one level for escalation alerts.
func escalatedPriority(priority string) string {
	switch priority {
	case "low":
		return "medium"
	case "medium":
		return "high"
	default:
		return "critical"
	}
}
