package users

import (
	"reflect"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"beginner", LevelBeginner},
		{"  Basic ", LevelBeginner},
		{"INTERMEDIATE", LevelIntermediate},
		{"advanced", LevelAdvanced},
		{"fluent", LevelAdvanced},
		{"Native", LevelNative},
		{"something else", LevelIntermediate},
		{"", LevelIntermediate},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestMergeInterests(t *testing.T) {
	got := MergeInterests([]string{"Hiking", "cooking"}, []string{"hiking", "Travel", "", "  "})
	want := []string{"Hiking", "cooking", "Travel"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeInterests = %v, want %v", got, want)
	}
}

func TestMergeInterestsPreservesOrder(t *testing.T) {
	got := MergeInterests(nil, []string{"b", "a", "b"})
	want := []string{"b", "a"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeInterests = %v, want %v", got, want)
	}
}

func TestPreferencesMerge(t *testing.T) {
	base := Preferences{
		Gender:   "any",
		Timezone: "Asia/Tokyo",
		Other:    map[string]string{"vibe": "casual"},
	}
	update := Preferences{
		Gender:          "female",
		BusinessFocused: true,
		Other:           map[string]string{"pace": "slow"},
	}

	merged := base.Merge(update)

	if merged.Gender != "female" {
		t.Errorf("gender = %q, want overwritten", merged.Gender)
	}
	if merged.Timezone != "Asia/Tokyo" {
		t.Errorf("timezone = %q, want preserved", merged.Timezone)
	}
	if !merged.BusinessFocused {
		t.Error("business focused flag should carry over")
	}
	if merged.Other["vibe"] != "casual" || merged.Other["pace"] != "slow" {
		t.Errorf("other = %v, want both keys", merged.Other)
	}
	// The receiver's map must not be mutated.
	if _, ok := base.Other["pace"]; ok {
		t.Error("merge mutated the base preferences map")
	}
}

func TestCalendarCredentialsConnected(t *testing.T) {
	if (CalendarCredentials{}).Connected() {
		t.Error("empty credentials should not be connected")
	}
	if !(CalendarCredentials{RefreshToken: "r"}).Connected() {
		t.Error("refresh token should count as connected")
	}
	if !(CalendarCredentials{AccessToken: "a"}).Connected() {
		t.Error("access token should count as connected")
	}
}
