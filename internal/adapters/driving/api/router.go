package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// Identity headers set by the authenticating gateway.
const (
	HeaderUser   = "X-Lectern-User"
	HeaderTenant = "X-Lectern-Tenant"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs request details and latency.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info("%s %s %d - %v", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+HeaderUser+", "+HeaderTenant)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// principalMiddleware rejects requests without a complete identity.
func principalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := domain.Principal{
			UserID:   r.Header.Get(HeaderUser),
			TenantID: r.Header.Get(HeaderTenant),
		}
		if p.UserID == "" || p.TenantID == "" {
			sendJSON(w, http.StatusUnauthorized, ErrorResponse{
				Error: "missing " + HeaderUser + " or " + HeaderTenant + " header",
				Kind:  string(domain.KindUnauthorized),
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

// NewRouter creates and configures the HTTP router.
func NewRouter(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Apply middleware
	r.Use(loggingMiddleware)
	r.Use(corsMiddleware)

	r.HandleFunc("/health", handler.HandleHealth).Methods("GET")

	// Identified routes
	s := r.NewRoute().Subrouter()
	s.Use(principalMiddleware)

	s.HandleFunc("/stats", handler.HandleStats).Methods("GET")

	s.HandleFunc("/materials", handler.HandleListMaterials).Methods("GET")
	s.HandleFunc("/materials", handler.HandleIngest).Methods("POST", "OPTIONS")
	s.HandleFunc("/materials/{id}", handler.HandleDeleteMaterial).Methods("DELETE", "OPTIONS")
	s.HandleFunc("/materials/{id}/status", handler.HandleMaterialStatus).Methods("GET")
	s.HandleFunc("/materials/{id}/reprocess", handler.HandleReprocess).Methods("POST", "OPTIONS")
	s.HandleFunc("/materials/{id}/search", handler.HandleSearch).Methods("POST", "OPTIONS")

	s.HandleFunc("/conversations", handler.HandleListConversations).Methods("GET")
	s.HandleFunc("/conversations", handler.HandleCreateConversation).Methods("POST", "OPTIONS")
	s.HandleFunc("/conversations/{id}", handler.HandleGetConversation).Methods("GET")
	s.HandleFunc("/conversations/{id}", handler.HandleDeleteConversation).Methods("DELETE", "OPTIONS")
	s.HandleFunc("/conversations/{id}/close", handler.HandleCloseConversation).Methods("POST", "OPTIONS")
	s.HandleFunc("/conversations/{id}/messages", handler.HandleHistory).Methods("GET")
	s.HandleFunc("/conversations/{id}/messages", handler.HandleSendMessage).Methods("POST", "OPTIONS")

	return r
}

// Serve runs the API on addr until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
