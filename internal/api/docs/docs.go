package docs

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed index.html openapi.yaml
var assets embed.FS

// Handler serves the API reference. Mount it under /docs/ with the prefix
// stripped.
func Handler() http.Handler {
	sub, err := fs.Sub(assets, ".")
	if err != nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "api docs not available", http.StatusInternalServerError)
		})
	}

	return http.FileServer(http.FS(sub))
}
