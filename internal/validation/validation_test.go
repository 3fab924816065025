package validation

import "testing"

func TestValidateRequired(t *testing.T) {
	if err := ValidateRequired("name", "value"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateRequired("name", "   "); err == nil {
		t.Error("whitespace-only value must fail")
	}
}

func TestValidateMaxLength(t *testing.T) {
	if err := ValidateMaxLength("name", "short", 10); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateMaxLength("name", "exceedingly long", 5); err == nil {
		t.Error("overlong value must fail")
	}
	// Rune count, not byte count.
	if err := ValidateMaxLength("name", "äöüäö", 5); err != nil {
		t.Errorf("5 runes within limit of 5: %v", err)
	}
}

func TestValidateWebhookURL(t *testing.T) {
	tests := []struct {
		value string
		ok    bool
	}{
		{"", true},
		{"https://hooks.example/notify", true},
		{"http://localhost:3000/hook", true},
		{"ftp://example.com", false},
		{"not a url", false},
		{"/relative/path", false},
	}
	for _, tt := range tests {
		err := ValidateWebhookURL("webhook", tt.value)
		if tt.ok && err != nil {
			t.Errorf("%q: unexpected error %v", tt.value, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("%q: expected error", tt.value)
		}
	}
}

func TestValidateDate(t *testing.T) {
	if err := ValidateDate("date", "2026-08-31"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	for _, bad := range []string{"31-08-2026", "2026/08/31", "2026-13-01", "today"} {
		if err := ValidateDate("date", bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestValidateChatKeyword(t *testing.T) {
	if err := ValidateChatKeyword("keyword", "good night"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateChatKeyword("keyword", ""); err == nil {
		t.Error("empty keyword must fail")
	}
	if err := ValidateChatKeyword("keyword", "/start"); err == nil {
		t.Error("slash-prefixed keyword must fail")
	}
}

func TestCollector(t *testing.T) {
	var c Collector
	c.Add(nil)
	if c.HasErrors() {
		t.Error("nil adds must not count")
	}
	c.Add(&ValidationError{Field: "a", Message: "bad"})
	c.Add(ValidateRequired("b", ""))
	if len(c.Errors()) != 2 {
		t.Errorf("errors = %d, want 2", len(c.Errors()))
	}
}
