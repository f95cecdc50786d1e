package httpapi

import (
	"net/http"
)

// NewMux returns a mux with the health check and the stylesheet directory
// mounted. Feature routes are registered on it afterwards.
func NewMux(store Pinger, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, store)
	mux.Handle("GET /css/", http.StripPrefix("/css/", http.FileServer(http.Dir(staticDir))))
	return mux
}
