package settings

import (
	"errors"
	"testing"

	"terralens/internal/schema"
)

func TestDefaultsAreValid(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestValidateCollectsFieldErrors(t *testing.T) {
	s := Defaults()
	s.Notifications.Email = "not-an-email"
	s.Analytics.DefaultReportFormat = "DOCX"
	s.Analytics.AlertSensitivity = 101
	s.Appearance.Theme = "neon"

	err := s.Validate()
	var verr *schema.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	want := []string{"notifications.email", "analytics.defaultReportFormat", "analytics.alertSensitivity", "appearance.theme"}
	if len(verr.Fields) != len(want) {
		t.Fatalf("fields = %+v", verr.Fields)
	}
	for i, field := range want {
		if verr.Fields[i].Field != field {
			t.Fatalf("field %d = %s, want %s", i, verr.Fields[i].Field, field)
		}
	}
}

func TestValidateAllowsEmptyEmail(t *testing.T) {
	s := Defaults()
	s.Notifications.Email = ""
	if err := s.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
