// Package normalize provides text and identity normalization for books and characters.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var (
	// Matches runs of whitespace, including unicode spaces.
	whitespaceRun = regexp.MustCompile(`[\s\p{Zs}]+`)

	caseFolder = cases.Fold()
)

// Invisible runes that survive ebook extraction: zero-width spaces,
// joiners, and BOMs.
const invisibleRunes = "\u200B\u200C\u200D\uFEFF"

// Key converts a character name to its canonical identity key.
// Two names with the same key refer to the same character:
// "ELIZABETH" and " Elizabeth" both map to "elizabeth".
//
// The key is NFKC-normalized, case-folded, and whitespace-collapsed.
// Display names keep their original casing; only identity comparison
// goes through Key.
func Key(name string) string {
	s := norm.NFKC.String(name)
	s = caseFolder.String(s)
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// DisplayName cleans a character name for storage without changing its case.
func DisplayName(name string) string {
	s := norm.NFC.String(sanitizeString(name))
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Text cleans extracted chapter text before segmentation.
// Normalizes line endings to \n, strips nulls, BOMs, and zero-width
// characters, and replaces non-breaking spaces with plain spaces.
// Blank-line paragraph boundaries are preserved.
func Text(s string) string {
	s = norm.NFC.String(sanitizeString(s))
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, " ", " ")
	return s
}

// sanitizeString removes null bytes and invisible runes, which can cause
// issues in databases and JSON parsing. Some ebook formats include null
// terminators and zero-width characters in extracted strings.
func sanitizeString(s string) string {
	return strings.Map(func(r rune) rune {
		if r == 0 || strings.ContainsRune(invisibleRunes, r) {
			return -1 // drop it
		}
		return r
	}, s)
}

// iso639_2to1 maps common ISO 639-2 (3-letter) codes to ISO 639-1
// (2-letter) codes. EPUB dc:language elements frequently carry the
// 3-letter bibliographic form.
//
//nolint:gochecknoglobals // Static lookup table for language normalization
var iso639_2to1 = map[string]string{
	"eng": "en", "spa": "es", "fra": "fr", "deu": "de", "ita": "it",
	"por": "pt", "nld": "nl", "rus": "ru", "jpn": "ja", "zho": "zh",
	"kor": "ko", "ara": "ar", "hin": "hi", "pol": "pl", "swe": "sv",
	"nor": "no", "dan": "da", "fin": "fi", "tur": "tr", "ell": "el",
	"heb": "he", "ces": "cs", "hun": "hu", "ron": "ro", "ukr": "uk",
	"vie": "vi", "ind": "id", "tha": "th", "cat": "ca", "hrv": "hr",
	// Alternative ISO 639-2/B codes (bibliographic)
	"ger": "de", "fre": "fr", "dut": "nl", "chi": "zh", "cze": "cs",
	"gre": "el", "rum": "ro",
}

// languageNameToCode maps common language names to ISO 639-1 codes.
//
//nolint:gochecknoglobals // Static lookup table for language normalization
var languageNameToCode = map[string]string{
	"english": "en", "spanish": "es", "french": "fr", "german": "de",
	"italian": "it", "portuguese": "pt", "dutch": "nl", "russian": "ru",
	"japanese": "ja", "chinese": "zh", "korean": "ko", "arabic": "ar",
	"hindi": "hi", "polish": "pl", "swedish": "sv", "norwegian": "no",
	"danish": "da", "finnish": "fi", "turkish": "tr", "greek": "el",
	"hebrew": "he", "czech": "cs", "hungarian": "hu", "romanian": "ro",
	"thai": "th", "vietnamese": "vi", "indonesian": "id", "ukrainian": "uk",
	"catalan": "ca", "croatian": "hr", "mandarin": "zh",
}

// codeToLanguageName maps ISO 639-1 codes to display names. A code is
// considered valid exactly when it has an entry here.
//
//nolint:gochecknoglobals // Static lookup table
var codeToLanguageName = map[string]string{
	"en": "English", "es": "Spanish", "fr": "French", "de": "German",
	"it": "Italian", "pt": "Portuguese", "nl": "Dutch", "ru": "Russian",
	"ja": "Japanese", "zh": "Chinese", "ko": "Korean", "ar": "Arabic",
	"hi": "Hindi", "pl": "Polish", "sv": "Swedish", "no": "Norwegian",
	"da": "Danish", "fi": "Finnish", "tr": "Turkish", "el": "Greek",
	"he": "Hebrew", "cs": "Czech", "hu": "Hungarian", "ro": "Romanian",
	"th": "Thai", "vi": "Vietnamese", "id": "Indonesian", "uk": "Ukrainian",
	"ca": "Catalan", "hr": "Croatian",
}

// LanguageCode converts various language representations to ISO 639-1 codes.
// It handles:
//   - ISO 639-1 codes: "en" -> "en"
//   - ISO 639-2 codes: "eng" -> "en"
//   - Locale codes: "en-US", "en_GB" -> "en"
//   - Language names: "English", "ENGLISH" -> "en"
//
// Returns empty string for unrecognized values.
func LanguageCode(raw string) string {
	if raw == "" {
		return ""
	}

	s := strings.ToLower(strings.TrimSpace(sanitizeString(raw)))
	if s == "" {
		return ""
	}

	// Handle locale codes (e.g., "en-US", "en_GB").
	if idx := strings.IndexAny(s, "-_"); idx > 0 {
		s = s[:idx]
	}

	if len(s) == 2 {
		if _, ok := codeToLanguageName[s]; ok {
			return s
		}
		return ""
	}

	if len(s) == 3 {
		if code, ok := iso639_2to1[s]; ok {
			return code
		}
	}

	if code, ok := languageNameToCode[s]; ok {
		return code
	}

	return ""
}

// Language converts various language representations to display names.
// "en" -> "English", "german" -> "German", "deu" -> "German"
// Returns empty string for unrecognized values.
func Language(raw string) string {
	code := LanguageCode(raw)
	if code == "" {
		return ""
	}
	return codeToLanguageName[code]
}
