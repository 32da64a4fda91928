// Package i18n translates the messages of the probav CLI and renders
// status symbols, as plain ASCII for screen readers when asked to.
package i18n

import (
	"embed"
	"fmt"
	"log"
	"sync"

	"github.com/BurntSushi/toml"
	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed active.*.toml
var messageFiles embed.FS

var (
	bundle     *goi18n.Bundle
	bundleOnce sync.Once
)

// Config selects the language and how symbols are rendered.
type Config struct {
	// Language code ("en", "de"). Detected from the environment when empty.
	Language string

	// Verbose logs keys that have no translation.
	Verbose bool

	// AccessibilityMode replaces emoji by ASCII markers.
	AccessibilityMode bool

	NoEmoji bool
}

// Localizer translates messages into one language.
type Localizer struct {
	loc     *goi18n.Localizer
	lang    string
	verbose bool
	plain   bool
}

func messages() *goi18n.Bundle {
	bundleOnce.Do(func() {
		bundle = goi18n.NewBundle(language.English)
		bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)
		for _, lang := range SupportedLanguages() {
			name := "active." + lang + ".toml"
			if _, err := bundle.LoadMessageFileFS(messageFiles, name); err != nil {
				log.Printf("i18n: warning: could not load %s: %v", name, err)
			}
		}
	})
	return bundle
}

// NewLocalizer creates a Localizer for cfg. Unsupported languages fall
// back to English.
func NewLocalizer(cfg Config) (*Localizer, error) {
	lang := cfg.Language
	if lang == "" {
		lang = DetectLanguage()
	}
	lang = NormalizeLanguage(lang)

	tag, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("invalid language %q: %w", lang, err)
	}
	return &Localizer{
		loc:     goi18n.NewLocalizer(messages(), tag.String()),
		lang:    lang,
		verbose: cfg.Verbose,
		plain:   cfg.AccessibilityMode || cfg.NoEmoji,
	}, nil
}

func (l *Localizer) localize(key string, data map[string]interface{}, count interface{}) (string, bool) {
	msg, err := l.loc.Localize(&goi18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: data,
		PluralCount:  count,
	})
	if err != nil {
		if l.verbose {
			log.Printf("i18n: no %s translation for %s: %v", l.lang, key, err)
		}
		return "", false
	}
	return msg, true
}

// T translates key. A missing translation yields "[key]".
func (l *Localizer) T(key string) string {
	return l.Tf(key, nil)
}

// Tf translates key, filling its template from data.
func (l *Localizer) Tf(key string, data map[string]interface{}) string {
	if msg, ok := l.localize(key, data, nil); ok {
		return msg
	}
	return "[" + key + "]"
}

// Tc translates the plural form of key for count, available to the
// template as .Count.
func (l *Localizer) Tc(key string, count int) string {
	if msg, ok := l.localize(key, map[string]interface{}{"Count": count}, count); ok {
		return msg
	}
	return fmt.Sprintf("[%s: %d]", key, count)
}

// Te returns the translation of key as an error wrapping err.
func (l *Localizer) Te(key string, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", l.T(key), err)
	}
	return fmt.Errorf("%s", l.T(key))
}
