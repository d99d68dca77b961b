package domain

import (
	"testing"
	"time"
)

func TestParseOutcome(t *testing.T) {
	known := []string{"answered", "no_answer", "busy", "voicemail", "callback", "wrong_number", "do_not_call", "failed"}
	for _, code := range known {
		kind, ok := ParseOutcome(code)
		if !ok {
			t.Errorf("expected %q to be recognized", code)
		}
		if string(kind) != code {
			t.Errorf("expected kind %q, got %q", code, kind)
		}
	}

	kind, ok := ParseOutcome("left message with spouse")
	if ok {
		t.Fatalf("expected free-text code to be unrecognized")
	}
	if kind != OutcomeOther {
		t.Fatalf("expected unrecognized code to map to %q, got %q", OutcomeOther, kind)
	}
}

func TestContactStatusAfter(t *testing.T) {
	cases := []struct {
		kind OutcomeKind
		want ContactStatus
	}{
		{OutcomeAnswered, ContactStatusCompleted},
		{OutcomeWrongNumber, ContactStatusCompleted},
		{OutcomeDoNotCall, ContactStatusDoNotCall},
		{OutcomeNoAnswer, ContactStatusAttempted},
		{OutcomeBusy, ContactStatusAttempted},
		{OutcomeVoicemail, ContactStatusAttempted},
		{OutcomeCallback, ContactStatusAttempted},
		{OutcomeFailed, ContactStatusAttempted},
		{OutcomeOther, ContactStatusAttempted},
	}

	for _, tc := range cases {
		if got := ContactStatusAfter(tc.kind); got != tc.want {
			t.Errorf("outcome %q: expected status %q, got %q", tc.kind, tc.want, got)
		}
	}
}

func TestRecommendedDepth(t *testing.T) {
	if got := RecommendedDepth(0, 1.5); got != 0 {
		t.Errorf("no agents: expected 0, got %d", got)
	}
	if got := RecommendedDepth(4, 0); got != 0 {
		t.Errorf("zero ratio: expected 0, got %d", got)
	}
	if got := RecommendedDepth(4, 1.0); got != 4 {
		t.Errorf("progressive ratio: expected 4, got %d", got)
	}
	if got := RecommendedDepth(3, 1.5); got != 5 {
		t.Errorf("fractional ratio rounds up: expected 5, got %d", got)
	}
	if got := RecommendedDepth(1, 0.5); got != 1 {
		t.Errorf("lone agent never starved: expected 1, got %d", got)
	}
}

func TestCallingHourWindowShape(t *testing.T) {
	w := CallingHourWindow{
		DayOfWeek: time.Monday,
		Start:     time.Date(0, 1, 1, 9, 0, 0, 0, time.UTC),
		End:       time.Date(0, 1, 1, 17, 0, 0, 0, time.UTC),
	}
	if !w.End.After(w.Start) {
		t.Fatalf("expected window end after start")
	}
}
