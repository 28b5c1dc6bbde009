package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/sevenfour-backend/internal/i18n"
)

func TestNegotiateLanguage(t *testing.T) {
	supported := []string{"en", "fil"}
	cases := map[string]string{
		"":                            "en",
		"fil-PH,fil;q=0.9,en;q=0.8":   "fil",
		"tl":                          "fil",
		"de-DE,fil-PH;q=0.9,en;q=0.8": "fil",
		"de-DE, en-US;q=0.7":          "en",
		"ja":                          "en",
		" ,;q=0.1":                    "en",
	}
	for header, want := range cases {
		assert.Equal(t, want, negotiateLanguage(header, supported), "header %q", header)
	}

	assert.Equal(t, "en", negotiateLanguage("fil", []string{"en"}))
}

func TestI18nMiddlewareUsesLoadedTranslations(t *testing.T) {
	gin.SetMode(gin.TestMode)
	require.NoError(t, i18n.Initialize("en"))
	require.Contains(t, i18n.GetSupportedLanguages(), "fil")

	r := gin.New()
	r.Use(I18nMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("lang")) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "es-ES,tl-PH;q=0.8")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "fil", w.Body.String())
}
