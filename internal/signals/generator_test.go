package signals

import (
	"testing"
	"time"

	"github.com/opensource-compliance/kestrel/internal/domain"
)

func testProfile() Profile {
	return Profile{
		DecisionType:   "standard_review",
		ExpectedFields: []string{"applicant_name", "applicant_id", "jurisdiction", "declaration"},
	}
}

func fullCaseState(now time.Time) *domain.CaseState {
	return &domain.CaseState{
		Case: &domain.Case{
			ID:              "case-001",
			TenantID:        "tenant-001",
			DecisionType:    "standard_review",
			Status:          domain.CaseStatusInReview,
			SubmissionID:    "sub-001",
			DecisionTraceID: "trace-001",
			CreatedAt:       now.Add(-48 * time.Hour),
			UpdatedAt:       now,
		},
		Submission: &domain.Submission{
			ID:     "sub-001",
			CaseID: "case-001",
			Fields: map[string]interface{}{
				"applicant_name": "Jordan Vale",
				"applicant_id":   "A-1001",
				"jurisdiction":   "US",
				"declaration":    "signed",
			},
			SubmittedAt: now.Add(-24 * time.Hour),
			UpdatedAt:   now.Add(-24 * time.Hour),
		},
		Attachments: []*domain.Attachment{
			{ID: "att-001", CaseID: "case-001", FileName: "evidence.pdf", UploadedAt: now.Add(-12 * time.Hour)},
			{ID: "att-002", CaseID: "case-001", FileName: "report.pdf", UploadedAt: now.Add(-6 * time.Hour)},
		},
		Events: []*domain.CaseEvent{
			{ID: "ev-001", CaseID: "case-001", EventType: domain.EventCaseCreated, OccurredAt: now.Add(-48 * time.Hour)},
			{ID: "ev-002", CaseID: "case-001", EventType: domain.EventRequestInfo, OccurredAt: now.Add(-30 * time.Hour)},
			{ID: "ev-003", CaseID: "case-001", EventType: domain.EventSubmitterResponse, OccurredAt: now.Add(-24 * time.Hour)},
		},
	}
}

func signalByType(signals []domain.Signal, signalType string) (domain.Signal, bool) {
	for _, s := range signals {
		if s.SignalType == signalType {
			return s, true
		}
	}
	return domain.Signal{}, false
}

func TestGenerate(t *testing.T) {
	gen := NewGenerator(nil)
	now := time.Now().UTC()

	t.Run("FullState", func(t *testing.T) {
		state := fullCaseState(now)
		sigs := gen.Generate(state, testProfile(), 3)

		if len(sigs) != 6 {
			t.Fatalf("expected 6 signals, got %d", len(sigs))
		}

		for _, st := range []string{
			domain.SignalSubmissionPresent,
			domain.SignalSubmissionCompleteness,
			domain.SignalEvidencePresent,
			domain.SignalRequestInfoOpen,
			domain.SignalSubmitterResponded,
			domain.SignalExplainabilityAvail,
		} {
			sig, ok := signalByType(sigs, st)
			if !ok {
				t.Fatalf("signal %s not generated", st)
			}
			if !sig.Complete {
				t.Errorf("signal %s should be complete for full state", st)
			}
			if sig.Strength < 0 || sig.Strength > 1 {
				t.Errorf("signal %s strength %.2f out of [0,1]", st, sig.Strength)
			}
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		state := fullCaseState(now)

		first := gen.Generate(state, testProfile(), 3)
		second := gen.Generate(state, testProfile(), 3)

		if len(first) != len(second) {
			t.Fatalf("signal counts differ: %d vs %d", len(first), len(second))
		}
		for i := range first {
			if first[i].SignalType != second[i].SignalType {
				t.Errorf("signal order differs at %d: %s vs %s", i, first[i].SignalType, second[i].SignalType)
			}
			if first[i].Strength != second[i].Strength {
				t.Errorf("signal %s strength differs: %.2f vs %.2f", first[i].SignalType, first[i].Strength, second[i].Strength)
			}
			if first[i].Complete != second[i].Complete {
				t.Errorf("signal %s complete flag differs", first[i].SignalType)
			}
		}
	})

	t.Run("DegenerateCase", func(t *testing.T) {
		state := &domain.CaseState{
			Case: &domain.Case{
				ID:           "case-empty",
				DecisionType: "standard_review",
				Status:       domain.CaseStatusDraft,
				CreatedAt:    now,
				UpdatedAt:    now,
			},
		}

		sigs := gen.Generate(state, testProfile(), 0)

		if len(sigs) != 1 {
			t.Fatalf("expected only submission_present for empty case, got %d signals", len(sigs))
		}
		if sigs[0].SignalType != domain.SignalSubmissionPresent {
			t.Errorf("expected submission_present, got %s", sigs[0].SignalType)
		}
		if sigs[0].Complete {
			t.Error("submission_present should be incomplete with no submission")
		}
		if sigs[0].Strength != 0 {
			t.Errorf("expected strength 0, got %.2f", sigs[0].Strength)
		}
	})

	t.Run("NeedsInfoInvertsPolarity", func(t *testing.T) {
		state := fullCaseState(now)
		state.Case.Status = domain.CaseStatusNeedsInfo

		sigs := gen.Generate(state, testProfile(), 0)

		sig, ok := signalByType(sigs, domain.SignalRequestInfoOpen)
		if !ok {
			t.Fatal("request_info_open not generated")
		}
		if sig.Complete {
			t.Error("request_info_open should be incomplete while status is needs_info")
		}
		if sig.Strength != 0 {
			t.Errorf("expected strength 0 for open request, got %.2f", sig.Strength)
		}

		// Resolving the request flips the signal back.
		state.Case.Status = domain.CaseStatusInReview
		sigs = gen.Generate(state, testProfile(), 0)
		sig, _ = signalByType(sigs, domain.SignalRequestInfoOpen)
		if !sig.Complete {
			t.Error("request_info_open should be complete once the request is resolved")
		}
	})

	t.Run("PartialSubmission", func(t *testing.T) {
		state := fullCaseState(now)
		state.Submission.Fields = map[string]interface{}{
			"applicant_name": "Jordan Vale",
			"applicant_id":   "",
		}

		sigs := gen.Generate(state, testProfile(), 0)

		sig, ok := signalByType(sigs, domain.SignalSubmissionCompleteness)
		if !ok {
			t.Fatal("submission_completeness not generated")
		}
		// 1 of 4 expected fields filled; empty strings do not count.
		if sig.Strength != 0.25 {
			t.Errorf("expected strength 0.25, got %.2f", sig.Strength)
		}
		if sig.Complete {
			t.Error("completeness below 0.5 should read incomplete")
		}
	})

	t.Run("DeletedAttachmentsExcluded", func(t *testing.T) {
		state := fullCaseState(now)
		state.Attachments[0].Deleted = true
		state.Attachments[1].Redacted = true

		sigs := gen.Generate(state, testProfile(), 0)

		if _, ok := signalByType(sigs, domain.SignalEvidencePresent); ok {
			t.Error("evidence_present should not be emitted when all attachments are deleted or redacted")
		}
	})

	t.Run("EvidenceStrengthScalesWithCount", func(t *testing.T) {
		state := fullCaseState(now)
		state.Attachments = state.Attachments[:1]

		sigs := gen.Generate(state, testProfile(), 0)
		sig, ok := signalByType(sigs, domain.SignalEvidencePresent)
		if !ok {
			t.Fatal("evidence_present not generated")
		}
		if sig.Strength != 0.5 {
			t.Errorf("expected strength 0.5 for one attachment, got %.2f", sig.Strength)
		}
	})

	t.Run("UnansweredRequestInfo", func(t *testing.T) {
		state := fullCaseState(now)
		// Drop the submitter response so the request is unanswered.
		state.Events = state.Events[:2]

		sigs := gen.Generate(state, testProfile(), 0)

		sig, ok := signalByType(sigs, domain.SignalSubmitterResponded)
		if !ok {
			t.Fatal("submitter_responded not generated despite request_info event")
		}
		if sig.Complete {
			t.Error("submitter_responded should be incomplete without a response")
		}
	})

	t.Run("NoRequestNoRespondedSignal", func(t *testing.T) {
		state := fullCaseState(now)
		state.Events = state.Events[:1]

		sigs := gen.Generate(state, testProfile(), 0)

		if _, ok := signalByType(sigs, domain.SignalSubmitterResponded); ok {
			t.Error("submitter_responded should not be emitted when no information was requested")
		}
	})

	t.Run("NoTraceNoExplainability", func(t *testing.T) {
		state := fullCaseState(now)
		state.Case.DecisionTraceID = ""

		sigs := gen.Generate(state, testProfile(), 0)

		if _, ok := signalByType(sigs, domain.SignalExplainabilityAvail); ok {
			t.Error("explainability_available should not be emitted without a decision trace")
		}
	})
}

func TestFieldRatio(t *testing.T) {
	expected := []string{"a", "b", "c", "d"}

	tests := []struct {
		name   string
		fields map[string]interface{}
		want   float64
	}{
		{"AllFilled", map[string]interface{}{"a": 1, "b": 2, "c": 3, "d": 4}, 1.0},
		{"HalfFilled", map[string]interface{}{"a": 1, "b": 2}, 0.5},
		{"EmptyStringNotFilled", map[string]interface{}{"a": "", "b": "x"}, 0.25},
		{"NilNotFilled", map[string]interface{}{"a": nil, "b": "x"}, 0.25},
		{"UnexpectedFieldsIgnored", map[string]interface{}{"z": 1}, 0},
		{"Empty", map[string]interface{}{}, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := fieldRatio(tc.fields, expected)
			if got != tc.want {
				t.Errorf("fieldRatio = %.2f, want %.2f", got, tc.want)
			}
		})
	}

	t.Run("NoExpectedFields", func(t *testing.T) {
		if got := fieldRatio(map[string]interface{}{"any": 1}, nil); got != 1 {
			t.Errorf("any filled field should yield 1 with no expected list, got %.2f", got)
		}
		if got := fieldRatio(map[string]interface{}{}, nil); got != 0 {
			t.Errorf("empty fields should yield 0, got %.2f", got)
		}
	})
}
