package i18n

import (
	"os"
	"slices"
	"strings"
)

// SupportedLanguages lists the languages messages are translated into.
func SupportedLanguages() []string {
	return []string{"en", "de"}
}

// DetectLanguage picks the language from PROBAV_LANG, then the system
// locale, then English.
func DetectLanguage() string {
	if lang := os.Getenv("PROBAV_LANG"); lang != "" {
		return NormalizeLanguage(lang)
	}
	if lang, ok := systemLanguage(); ok {
		return NormalizeLanguage(lang)
	}
	return "en"
}

// systemLanguage reads LC_ALL, LANG and the first entry of LANGUAGE, in
// that order.
func systemLanguage() (string, bool) {
	for _, env := range []string{"LC_ALL", "LANG"} {
		if lang := os.Getenv(env); lang != "" {
			return lang, true
		}
	}
	if first, _, _ := strings.Cut(os.Getenv("LANGUAGE"), ":"); first != "" {
		return first, true
	}
	return "", false
}

// NormalizeLanguage reduces a locale such as de_AT.UTF-8 to its base
// language. Unsupported languages become "en".
func NormalizeLanguage(lang string) string {
	lang = strings.ToLower(lang)
	lang, _, _ = strings.Cut(lang, ".")
	lang, _, _ = strings.Cut(lang, "_")
	lang, _, _ = strings.Cut(lang, "-")

	if slices.Contains(SupportedLanguages(), lang) {
		return lang
	}
	return "en"
}
