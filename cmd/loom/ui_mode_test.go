package main

import "testing"

func TestReadUIMode(t *testing.T) {
	cases := []struct {
		input string
		want  uiMode
	}{
		{"", uiModeAuto},
		{"auto", uiModeAuto},
		{"on", uiModeOn},
		{" On ", uiModeOn},
		{"OFF", uiModeOff},
	}
	for _, tc := range cases {
		got, err := readUIMode(tc.input)
		if err != nil {
			t.Fatalf("readUIMode(%q) error: %v", tc.input, err)
		}
		if got != tc.want {
			t.Fatalf("readUIMode(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}

	if _, err := readUIMode("tui"); err == nil {
		t.Fatalf("expected error for invalid ui mode")
	}
}

func TestShouldUseTUIExplicitModes(t *testing.T) {
	if !shouldUseTUI(uiModeOn) {
		t.Fatalf("ui mode on should force the TUI")
	}
	if shouldUseTUI(uiModeOff) {
		t.Fatalf("ui mode off should disable the TUI")
	}
}
