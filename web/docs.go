package web

import (
	_ "embed"
	"net/http"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

//go:embed openapi.json
var openAPISpec []byte

// docsRouter serves the OpenAPI document and a Swagger UI over it.
func (h *Handler) docsRouter() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(openAPISpec)
	})

	r.Get("/*", httpSwagger.Handler(
		httpSwagger.URL("/docs/openapi.json"),
	))

	return r
}
