//go:build !embed

package frontend

import "net/http"

// Handler returns nil when the binary was built without -tags embed; the
// server falls back to a placeholder page or a filesystem directory.
func Handler() http.Handler {
	return nil
}
