package cards

import (
	"encoding/json"
	"testing"
)

func TestPayloadRoundTrip_Countdown(t *testing.T) {
	p := Payload{
		Kind: KindCountdown,
		Countdown: &Countdown{
			Seconds:   300,
			StartedAt: 1700000000000,
			Label:     "5-minute evaluation",
			Next: &Transition{
				Type:    TransitionWebhookPost,
				Payload: json.RawMessage(`{"text":"check in"}`),
			},
		},
	}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got Payload
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Kind != KindCountdown {
		t.Fatalf("kind = %q, want %q", got.Kind, KindCountdown)
	}
	c := got.Countdown
	if c == nil {
		t.Fatal("countdown variant missing after round trip")
	}
	if c.Seconds != 300 || c.StartedAt != 1700000000000 || c.Label != "5-minute evaluation" {
		t.Errorf("countdown fields lost: %+v", c)
	}
	if c.Next == nil || c.Next.Type != TransitionWebhookPost {
		t.Errorf("transition descriptor lost: %+v", c.Next)
	}
}

func TestPayloadRoundTrip_QuestionSaveChain(t *testing.T) {
	p := Payload{
		Kind: KindQuestionSave,
		QuestionSave: &QuestionSave{
			Prompt:    "How was your day?",
			SaveTo:    SaveTargetWinddown,
			SessionID: "sess-1",
			Question:  "day_review",
			Next: &Transition{
				Type:     TransitionQuestionSave,
				Prompt:   "What is one thing you have learned today?",
				Question: "one_thing_learned",
				Next:     &Transition{Type: TransitionGoodnight},
			},
		},
	}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got Payload
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	q := got.QuestionSave
	if q == nil {
		t.Fatal("questionSave variant missing")
	}
	if q.SessionID != "sess-1" || q.SaveTo != SaveTargetWinddown {
		t.Errorf("session fields lost: %+v", q)
	}
	if q.Next == nil || q.Next.Next == nil || q.Next.Next.Type != TransitionGoodnight {
		t.Errorf("nested transition lost: %+v", q.Next)
	}
}

func TestPayloadDecode_LegacyCountdown60(t *testing.T) {
	var p Payload
	if err := json.Unmarshal([]byte(`{"demo":"countdown60"}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Kind != KindCountdown {
		t.Fatalf("kind = %q, want %q", p.Kind, KindCountdown)
	}
	if p.Countdown == nil || p.Countdown.Seconds != 60 {
		t.Errorf("legacy tag should decode as a 60-second countdown, got %+v", p.Countdown)
	}

	// Re-encoding never produces the legacy tag.
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var w map[string]any
	if err := json.Unmarshal(data, &w); err != nil {
		t.Fatalf("unmarshal wire: %v", err)
	}
	if w["demo"] != string(KindCountdown) {
		t.Errorf("demo tag = %v, want %q", w["demo"], KindCountdown)
	}
}

func TestPayloadDecode_MissingTag(t *testing.T) {
	var p Payload
	if err := json.Unmarshal([]byte(`{"seconds":60}`), &p); err == nil {
		t.Fatal("expected error for payload without demo tag")
	}
}

func TestCountdownRemaining_Monotonic(t *testing.T) {
	c := Countdown{Seconds: 10, StartedAt: 1000}

	prev := c.Remaining(1000)
	if prev != 10 {
		t.Fatalf("remaining at start = %d, want 10", prev)
	}
	for now := int64(1000); now <= 16000; now += 500 {
		r := c.Remaining(now)
		if r > prev {
			t.Fatalf("remaining increased from %d to %d at now=%d", prev, r, now)
		}
		if r < 0 {
			t.Fatalf("remaining went negative: %d", r)
		}
		prev = r
	}
	if got := c.Remaining(999999); got != 0 {
		t.Errorf("remaining long after expiry = %d, want 0", got)
	}
}

func TestCountdownRemaining_NotStarted(t *testing.T) {
	c := Countdown{Seconds: 42}
	if got := c.Remaining(123456789); got != 42 {
		t.Errorf("unstarted countdown remaining = %d, want 42", got)
	}
	if c.Expired(123456789) {
		t.Error("unstarted countdown must never be expired")
	}
}

func TestCountdownDisplayLabel(t *testing.T) {
	tests := []struct {
		c    Countdown
		want string
	}{
		{Countdown{Seconds: 60}, "1-minute timer"},
		{Countdown{Seconds: 300}, "5-minute timer"},
		{Countdown{Seconds: 90}, "2-minute timer"},
		{Countdown{Seconds: 300, Label: "5-minute evaluation"}, "5-minute evaluation"},
	}
	for _, tt := range tests {
		if got := tt.c.DisplayLabel(); got != tt.want {
			t.Errorf("DisplayLabel(%+v) = %q, want %q", tt.c, got, tt.want)
		}
	}
}
