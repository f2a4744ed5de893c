package seed

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/voicescript/collector/internal/model"
)

func TestDemo(t *testing.T) {
	ds, err := Demo()
	if err != nil {
		t.Fatalf("Demo() error = %v", err)
	}

	if ds.Password != "demo123" {
		t.Errorf("password = %q, want demo123", ds.Password)
	}
	if got := len(ds.Users); got != 13 {
		t.Errorf("users = %d, want 13", got)
	}
	if got := len(ds.Scripts); got != 5 {
		t.Errorf("scripts = %d, want 5", got)
	}

	roles := map[model.Role]int{}
	for _, u := range ds.Users {
		roles[u.Role]++
		if u.Gender == "" || u.AgeGroup == "" {
			t.Errorf("user %s has no demographics", u.Email)
		}
	}
	wantRoles := map[model.Role]int{model.RoleAdmin: 1, model.RoleReviewer: 1, model.RoleProvider: 11}
	if diff := cmp.Diff(wantRoles, roles); diff != "" {
		t.Errorf("role counts mismatch (-want +got):\n%s", diff)
	}

	type rate struct{ provider, reviewer float64 }
	rates := map[string]rate{}
	for _, l := range ds.Languages {
		rates[l.Code] = rate{l.ProviderRate, l.ReviewerRate}
	}
	wantRates := map[string]rate{
		"en": {0.01, 2.00}, "es": {0.012, 2.20}, "fr": {0.013, 2.30}, "de": {0.014, 2.40},
		"bn": {0.015, 2.50}, "hi": {0.015, 2.50}, "ar": {0.016, 2.60}, "zh": {0.018, 2.80},
		"ja": {0.020, 3.00}, "ko": {0.020, 3.00},
	}
	if diff := cmp.Diff(wantRates, rates, cmp.AllowUnexported(rate{})); diff != "" {
		t.Errorf("language rates mismatch (-want +got):\n%s", diff)
	}
}

func TestDemo_AgeGroupsUseEnDash(t *testing.T) {
	ds, err := Demo()
	if err != nil {
		t.Fatal(err)
	}
	valid := map[string]bool{
		"Child (0–12)":  true,
		"Teen (13–19)":  true,
		"Adult (20–59)": true,
		"Elderly (60+)": true,
	}
	for _, u := range ds.Users {
		if !valid[u.AgeGroup] {
			t.Errorf("user %s has age group %q", u.Email, u.AgeGroup)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"minimal", "password: x\n", false},
		{"missing password", "users: []\n", true},
		{"bad role", "password: x\nusers:\n  - {email: a@b.co, role: owner}\n", true},
		{"missing language name", "password: x\nlanguages:\n  - {code: en}\n", true},
		{"malformed", "password: [", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDatasetEmails(t *testing.T) {
	ds := &Dataset{Users: []UserSeed{{Email: "a@demo.com"}, {Email: "b@demo.com"}}}
	if diff := cmp.Diff([]string{"a@demo.com", "b@demo.com"}, ds.Emails()); diff != "" {
		t.Errorf("Emails() mismatch (-want +got):\n%s", diff)
	}
}
