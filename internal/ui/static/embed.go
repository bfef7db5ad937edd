// Пакет static — CSS Admin UI, встроенный в бинарник.
package static

import (
	"embed"
	"net/http"
)

//go:embed css
var assets embed.FS

// Handler раздаёт встроенные файлы; prefix отрезается от пути запроса.
func Handler(prefix string) http.Handler {
	files := http.FileServerFS(assets)
	return http.StripPrefix(prefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		files.ServeHTTP(w, r)
	}))
}
