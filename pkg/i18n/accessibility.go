package i18n

var emoji = map[string]string{
	"globe":     "🌍",
	"satellite": "🛰️",
}

// Status symbols as emoji and as the ASCII marker read out by screen
// readers.
var symbols = map[string]struct{ emoji, ascii string }{
	"success": {"✅", "[OK]"},
	"error":   {"❌", "[ERR]"},
	"warning": {"⚠️", "[!]"},
	"pending": {"⏳", "[ ]"},
	"running": {"🔄", "[*]"},
	"skipped": {"⏭️", "[-]"},
}

// Emoji returns the named emoji, or "" when emoji are disabled.
func (l *Localizer) Emoji(name string) string {
	if l.plain {
		return ""
	}
	return emoji[name]
}

// Symbol returns the marker of a status.
func (l *Localizer) Symbol(status string) string {
	s, ok := symbols[status]
	switch {
	case !ok && l.plain:
		return "[?]"
	case !ok:
		return "?"
	case l.plain:
		return s.ascii
	}
	return s.emoji
}

// FormatStatus prefixes message with the marker of status.
func (l *Localizer) FormatStatus(status, message string) string {
	return l.Symbol(status) + " " + message
}

// Emoji returns the named emoji using the active localizer.
func Emoji(name string) string {
	if active == nil {
		return ""
	}
	return active.Emoji(name)
}

// Symbol returns the marker of a status using the active localizer.
func Symbol(status string) string {
	if active == nil {
		return "?"
	}
	return active.Symbol(status)
}

// FormatStatus prefixes message with a status marker using the active
// localizer.
func FormatStatus(status, message string) string {
	if active == nil {
		return message
	}
	return active.FormatStatus(status, message)
}
