package app

import (
	"crypto/subtle"
	"net/http"
)

// RequestHasInvalidAPIKey checks the "key" query parameter against the
// configured debug keys. With no keys configured every request is allowed.
func (app *Application) RequestHasInvalidAPIKey(r *http.Request) bool {
	if len(app.Config.Server.DebugKeys) == 0 {
		return false
	}
	return app.IsInvalidAPIKey(r.URL.Query().Get("key"))
}

func (app *Application) IsInvalidAPIKey(key string) bool {
	if key == "" {
		return true
	}

	for _, validKey := range app.Config.Server.DebugKeys {
		// Use constant-time comparison to prevent timing attacks
		if subtle.ConstantTimeCompare([]byte(key), []byte(validKey)) == 1 {
			return false
		}
	}

	return true
}
