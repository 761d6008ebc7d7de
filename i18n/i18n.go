// Package i18n translates bilibook's own user-facing strings.
//
// It wraps the gotext library behind a T() helper. Locale files are
// embedded in the binary and selected at startup from the standard
// environment variables.
package i18n

import (
	"embed"
	"os"
	"strings"

	"github.com/leonelquinteros/gotext"
)

// locales embeds the compiled translation catalogs.
// Layout: locales/{lang}/LC_MESSAGES/bilibook.po
//
//go:embed all:locales
var locales embed.FS

// domain is the gettext domain name.
const domain = "bilibook"

var locale *gotext.Locale

// Init selects the locale. An empty lang auto-detects from LANGUAGE,
// LC_ALL, LC_MESSAGES, LANG (in GNU gettext priority order). Call once at
// program startup.
func Init(lang string) {
	if lang == "" {
		lang = detectLanguage()
	}
	locale = gotext.NewLocaleFSWithPath(lang, locales, "locales")
	locale.AddDomain(domain)
	locale.SetDomain(domain)
}

// T translates a string, falling back to the original when no catalog
// entry exists.
func T(msgid string) string {
	if locale == nil {
		return msgid
	}
	return locale.Get(msgid)
}

// detectLanguage reads the environment following GNU gettext conventions.
func detectLanguage() string {
	for _, env := range []string{"LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		val := os.Getenv(env)
		if val == "" {
			continue
		}
		if env == "LANGUAGE" {
			val = strings.SplitN(val, ":", 2)[0]
		}
		if idx := strings.IndexByte(val, '.'); idx >= 0 {
			val = val[:idx]
		}
		if val == "C" || val == "POSIX" || val == "" {
			continue
		}
		return val
	}
	return "en"
}
