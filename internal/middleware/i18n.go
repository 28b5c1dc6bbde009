// internal/middleware/i18n.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/sevenfour-backend/internal/i18n"
)

// Tagalog requests are served the Filipino translations.
var languageAliases = map[string]string{"tl": "fil"}

func I18nMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("lang", negotiateLanguage(c.GetHeader("Accept-Language"), i18n.GetSupportedLanguages()))
		c.Next()
	}
}

// negotiateLanguage picks the first Accept-Language entry with a loaded
// translation, e.g. "de-DE,fil-PH;q=0.9,en;q=0.8" gives "fil".
func negotiateLanguage(header string, supported []string) string {
	known := make(map[string]bool, len(supported))
	for _, lang := range supported {
		known[lang] = true
	}

	for _, entry := range strings.Split(header, ",") {
		tag := strings.ToLower(strings.TrimSpace(strings.Split(entry, ";")[0]))
		if tag == "" {
			continue
		}
		base := strings.Split(tag, "-")[0]
		if alias, ok := languageAliases[base]; ok {
			base = alias
		}
		if known[base] {
			return base
		}
	}
	return "en"
}
