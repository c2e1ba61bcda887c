package server

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"

	"github.com/Sternrassler/pncp-proxy/pkg/proxy"
	"github.com/Sternrassler/pncp-proxy/pkg/translate"
)

// CacheHeader reports HIT, MISS or SHARED for proxied responses.
const CacheHeader = "X-Cache"

const healthMessage = "Proxy funcionando!"

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// Endpoint describes one route in the not-found catalogue.
type Endpoint struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

// NotFoundResponse is the body returned for unmatched paths.
type NotFoundResponse struct {
	Success   bool       `json:"success"`
	Error     string     `json:"error"`
	Endpoints []Endpoint `json:"endpoints"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Message:   healthMessage,
		Timestamp: s.now().UTC().Format(proxy.TimestampLayout),
		Version:   s.config.Version,
	})
}

// route returns the handler for a route kind.
func (s *Server) route(kind translate.RouteKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := translate.Request{
			Route: kind,
			Path:  r.URL.Path,
			Query: translate.ParseQuery(r.URL.RawQuery),
			ID:    mux.Vars(r)["id"],
		}

		resp := s.proxy.Handle(r.Context(), req)

		// Nobody is left to read the response.
		if r.Context().Err() != nil || resp.Status == proxy.StatusClientClosedRequest {
			s.logger.Debug().
				Str("path", r.URL.Path).
				Str("request_id", RequestIDFrom(r.Context())).
				Msg("Client went away, response dropped")
			return
		}

		if resp.Cache != "" {
			w.Header().Set(CacheHeader, string(resp.Cache))
		}

		body, err := resp.Envelope.Marshal()
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to encode envelope")
			http.Error(w, `{"success":false,"error":"internal error"}`, http.StatusInternalServerError)
			return
		}

		writeRaw(w, resp.Status, body)
	}
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, NotFoundResponse{
		Success:   false,
		Error:     "endpoint not found: " + r.URL.Path,
		Endpoints: s.Endpoints(),
	})
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", http.MethodGet)
	writeJSON(w, http.StatusMethodNotAllowed, proxy.NewFailure("method "+r.Method+" not allowed", nil))
}

// Endpoints lists the routes the server answers.
func (s *Server) Endpoints() []Endpoint {
	return []Endpoint{
		{http.MethodGet, PathHealth, "health check"},
		{http.MethodGet, PathMetrics, "Prometheus metrics"},
		{http.MethodGet, s.config.Mount + "/*", "passthrough to the PNCP consulta API"},
		{http.MethodGet, PathContratacoes, "publication listing (dataInicial, dataFinal, pagina, ...)"},
		{http.MethodGet, PathVeiculos, "vehicle-related publications (dataInicial, dataFinal, pagina, tamanhoPagina)"},
		{http.MethodGet, PathDocumentos, "documents of a procurement"},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, `{"success":false,"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, body)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
