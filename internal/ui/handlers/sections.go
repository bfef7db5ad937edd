package handlers

import (
	"net/http"

	"github.com/vixio/admin-module/internal/ui/pages"
)

// HandleSection возвращает обработчик страницы раздела.
// Доступ к разделу проверяет guard до вызова обработчика.
func (rn *Renderer) HandleSection(titleKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rn.HTML(w, r, http.StatusOK, pages.Section(rn.Layout(r, titleKey)))
	}
}
