// Package signals derives the per-case signal set from persisted case state.
package signals

import (
	"time"

	"github.com/opensource-compliance/kestrel/internal/domain"
)

// Profile carries the decision-type-specific inputs the generator needs:
// the expected submission form fields and any extension signal specs.
type Profile struct {
	DecisionType   string
	ExpectedFields []string
	Extensions     []domain.ExtensionSpec
}

// Generator produces the signal set for a case. Generation is a pure
// function of the loaded case state: identical state always yields an
// identical signal set, in the same order.
type Generator struct {
	ext *Evaluator
}

// NewGenerator creates a generator. The extension evaluator may be nil when
// no decision type declares extension signals.
func NewGenerator(ext *Evaluator) *Generator {
	return &Generator{ext: ext}
}

// Generate derives the signal set for the case state. Signals are emitted
// only when their underlying artifact is observable, so a case with no
// submission yields a degenerate set rather than an error: absent optional
// data degrades, it never throws. recentEvents is the event count in the
// activity window, fed to extension expressions.
func (g *Generator) Generate(state *domain.CaseState, profile Profile, recentEvents int64) []domain.Signal {
	c := state.Case
	out := make([]domain.Signal, 0, 6+len(profile.Extensions))

	// submission_present is always observable from the case record.
	present := state.Submission != nil
	presentTS := c.CreatedAt
	if present {
		presentTS = state.Submission.SubmittedAt
	}
	out = append(out, domain.Signal{
		CaseID:     c.ID,
		SignalType: domain.SignalSubmissionPresent,
		SourceType: domain.SourceSubmissionLink,
		Complete:   present,
		Strength:   boolStrength(present),
		Timestamp:  presentTS,
		Metadata:   map[string]interface{}{"submissionId": c.SubmissionID},
	})

	if present {
		ratio := fieldRatio(state.Submission.Fields, profile.ExpectedFields)
		out = append(out, domain.Signal{
			CaseID:     c.ID,
			SignalType: domain.SignalSubmissionCompleteness,
			SourceType: domain.SourceSubmissionForm,
			Complete:   ratio >= 0.5,
			Strength:   ratio,
			Timestamp:  state.Submission.UpdatedAt,
			Metadata: map[string]interface{}{
				"filledRatio":    ratio,
				"expectedFields": len(profile.ExpectedFields),
			},
		})
	}

	if live := state.LiveAttachments(); len(live) > 0 {
		latest := live[0].UploadedAt
		for _, a := range live[1:] {
			if a.UploadedAt.After(latest) {
				latest = a.UploadedAt
			}
		}
		strength := float64(len(live)) / 2
		if strength > 1 {
			strength = 1
		}
		out = append(out, domain.Signal{
			CaseID:     c.ID,
			SignalType: domain.SignalEvidencePresent,
			SourceType: domain.SourceEvidenceStorage,
			Complete:   true,
			Strength:   strength,
			Timestamp:  latest,
			Metadata:   map[string]interface{}{"attachmentCount": len(live)},
		})
	}

	if present {
		// Inverted polarity: an outstanding information request actively
		// lowers confidence, so the signal is incomplete while the case
		// status is needs_info. Complete flag = 1 is always good.
		open := c.Status == domain.CaseStatusNeedsInfo
		out = append(out, domain.Signal{
			CaseID:     c.ID,
			SignalType: domain.SignalRequestInfoOpen,
			SourceType: domain.SourceCaseStatus,
			Complete:   !open,
			Strength:   boolStrength(!open),
			Timestamp:  c.UpdatedAt,
			Metadata:   map[string]interface{}{"status": c.Status},
		})
	}

	if reqAt, asked := lastEventAt(state.Events, domain.EventRequestInfo); asked {
		respAt, responded := responseAfter(state.Events, reqAt)
		ts := reqAt
		if responded {
			ts = respAt
		}
		out = append(out, domain.Signal{
			CaseID:     c.ID,
			SignalType: domain.SignalSubmitterResponded,
			SourceType: domain.SourceCaseEvents,
			Complete:   responded,
			Strength:   boolStrength(responded),
			Timestamp:  ts,
			Metadata:   map[string]interface{}{"requestedAt": reqAt},
		})
	}

	if c.DecisionTraceID != "" {
		out = append(out, domain.Signal{
			CaseID:     c.ID,
			SignalType: domain.SignalExplainabilityAvail,
			SourceType: domain.SourceDecisionTrace,
			Complete:   true,
			Strength:   1,
			Timestamp:  c.UpdatedAt,
			Metadata:   map[string]interface{}{"traceId": c.DecisionTraceID},
		})
	}

	if g.ext != nil {
		for _, spec := range profile.Extensions {
			sig, err := g.ext.Evaluate(spec, state, profile, recentEvents)
			if err != nil {
				// An extension that fails to evaluate is simply not
				// observed; the gap detector reports it as missing.
				continue
			}
			out = append(out, sig)
		}
	}

	return out
}

// fieldRatio returns the fraction of expected form fields that are filled.
func fieldRatio(fields map[string]interface{}, expected []string) float64 {
	if len(expected) == 0 {
		if len(fields) > 0 {
			return 1
		}
		return 0
	}

	filled := 0
	for _, name := range expected {
		v, ok := fields[name]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			continue
		}
		filled++
	}
	return float64(filled) / float64(len(expected))
}

func boolStrength(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// lastEventAt returns the time of the most recent event of the given type.
func lastEventAt(events []*domain.CaseEvent, eventType string) (time.Time, bool) {
	var at time.Time
	found := false
	for _, ev := range events {
		if ev.EventType == eventType && (!found || ev.OccurredAt.After(at)) {
			at = ev.OccurredAt
			found = true
		}
	}
	return at, found
}

// responseAfter reports whether a submitter response or resubmission was
// logged after the given request time.
func responseAfter(events []*domain.CaseEvent, reqAt time.Time) (time.Time, bool) {
	for _, ev := range events {
		if ev.EventType != domain.EventSubmitterResponse && ev.EventType != domain.EventSubmissionReceived {
			continue
		}
		if ev.OccurredAt.After(reqAt) {
			return ev.OccurredAt, true
		}
	}
	return time.Time{}, false
}
