package normalize

import "testing"

func TestKey(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		// Case folding
		{"Elizabeth", "elizabeth"},
		{"ELIZABETH", "elizabeth"},
		{"eLiZaBeTh", "elizabeth"},
		// Whitespace
		{"  Elizabeth  ", "elizabeth"},
		{"Mr.  Darcy", "mr. darcy"},
		{"Mr.\tDarcy", "mr. darcy"},
		// Unicode compatibility forms
		{"Ｅlizabeth", "elizabeth"}, // fullwidth E
		{"José", "josé"},
		// Edge cases
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := Key(tt.input)
			if result != tt.expected {
				t.Errorf("Key(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestKey_SameCharacterDifferentForms(t *testing.T) {
	forms := []string{"Narrator", "narrator", "NARRATOR", " Narrator "}
	want := Key(forms[0])
	for _, f := range forms[1:] {
		if got := Key(f); got != want {
			t.Errorf("Key(%q) = %q, want %q (forms must collapse to one identity)", f, got, want)
		}
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Elizabeth", "Elizabeth"},
		{"  Mr.  Darcy  ", "Mr. Darcy"},
		{"Jane\u200BBennet", "JaneBennet"}, // zero-width space dropped
		{"Anne Elliot", "Anne Elliot"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := DisplayName(tt.input)
			if result != tt.expected {
				t.Errorf("DisplayName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"crlf", "line one\r\nline two", "line one\nline two"},
		{"bare cr", "line one\rline two", "line one\nline two"},
		{"bom", "\uFEFFChapter 1", "Chapter 1"},
		{"nbsp", "a b", "a b"},
		{"null byte", "a\x00b", "ab"},
		{"paragraph break preserved", "para one\n\npara two", "para one\n\npara two"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Text(tt.input)
			if result != tt.expected {
				t.Errorf("Text(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLanguageCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		// ISO 639-1 codes (passthrough)
		{"en", "en"},
		{"de", "de"},
		// ISO 639-2 codes
		{"eng", "en"},
		{"ger", "de"}, // bibliographic variant
		// Locale codes
		{"en-US", "en"},
		{"en_GB", "en"},
		// Language names
		{"english", "en"},
		{"ENGLISH", "en"},
		// Edge cases
		{"", ""},
		{"  en  ", "en"},
		{"xyz", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := LanguageCode(tt.input)
			if result != tt.expected {
				t.Errorf("LanguageCode(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLanguage(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"en", "English"},
		{"eng", "English"},
		{"de-AT", "German"},
		{"FRENCH", "French"},
		{"", ""},
		{"xyz", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := Language(tt.input)
			if result != tt.expected {
				t.Errorf("Language(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
