package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

// Defaults applied when a request leaves a value unset.
const (
	DefaultTopK         = 5
	DefaultHistoryLimit = 50

	// MaxUploadBytes bounds the body of POST /materials.
	MaxUploadBytes = 32 << 20
)

// Services are the driving ports the HTTP adapter serves.
type Services struct {
	Ingestion    driving.IngestionService
	Retrieval    driving.RetrievalService
	Conversation driving.ConversationService
	Index        driving.VectorIndexService
}

// Handler holds the dependencies for HTTP handlers.
type Handler struct {
	svc Services
}

// NewHandler creates a Handler over the given services.
func NewHandler(svc Services) *Handler {
	return &Handler{svc: svc}
}

type principalKey struct{}

// withPrincipal stores the caller's identity in ctx.
func withPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// principalFrom returns the caller set by the principal middleware.
func principalFrom(r *http.Request) domain.Principal {
	p, _ := r.Context().Value(principalKey{}).(domain.Principal)
	return p
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "Invalid JSON: "+err.Error())
		return false
	}
	return true
}

// HandleHealth handles GET /health requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	state := h.svc.Index.State()
	status, code := "ok", http.StatusOK
	if state != domain.IndexReady {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	sendJSON(w, code, HealthResponse{Status: status, IndexState: string(state)})
}

// HandleStats handles GET /stats requests.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Index.Stats(r.Context())
	if err != nil {
		sendError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, StatsResponse{
		Collection:  stats.Collection,
		Dimension:   stats.Dimension,
		Metric:      string(stats.Metric),
		RecordCount: stats.RecordCount,
		State:       string(stats.State),
	})
}

// HandleListMaterials handles GET /materials requests.
func (h *Handler) HandleListMaterials(w http.ResponseWriter, r *http.Request) {
	materials, err := h.svc.Ingestion.List(r.Context(), principalFrom(r))
	if err != nil {
		sendError(w, err)
		return
	}
	out := make([]MaterialResponse, len(materials))
	for i, m := range materials {
		out[i] = toMaterial(m)
	}
	sendJSON(w, http.StatusOK, out)
}

// HandleIngest handles POST /materials requests. The material is fully
// indexed, or has failed, when the response is written.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)

	var req IngestRequest
	if !decode(w, r, &req) {
		return
	}

	content := []byte(req.Content)
	if req.ContentBase64 != "" {
		if req.Content != "" {
			badRequest(w, "content and content_base64 are mutually exclusive")
			return
		}
		raw, err := base64.StdEncoding.DecodeString(req.ContentBase64)
		if err != nil {
			badRequest(w, "Invalid content_base64: "+err.Error())
			return
		}
		content = raw
	}

	status, err := h.svc.Ingestion.Ingest(r.Context(), principalFrom(r), driving.IngestRequest{
		MaterialID:  req.ID,
		Title:       req.Title,
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Content:     content,
	})
	if err != nil {
		sendError(w, err)
		return
	}
	sendJSON(w, http.StatusCreated, toStatus(status))
}

// HandleMaterialStatus handles GET /materials/{id}/status requests.
func (h *Handler) HandleMaterialStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.Ingestion.Status(r.Context(), principalFrom(r), mux.Vars(r)["id"])
	if err != nil {
		sendError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, toStatus(status))
}

// HandleReprocess handles POST /materials/{id}/reprocess requests.
func (h *Handler) HandleReprocess(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.Ingestion.Reprocess(r.Context(), principalFrom(r), mux.Vars(r)["id"])
	if err != nil {
		sendError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, toStatus(status))
}

// HandleDeleteMaterial handles DELETE /materials/{id} requests.
func (h *Handler) HandleDeleteMaterial(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ingestion.Delete(r.Context(), principalFrom(r), mux.Vars(r)["id"]); err != nil {
		sendError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSearch handles POST /materials/{id}/search requests.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decode(w, r, &req) {
		return
	}
	if req.TopK <= 0 {
		req.TopK = DefaultTopK
	}

	start := time.Now()
	chunks, err := h.svc.Retrieval.Search(r.Context(), principalFrom(r), mux.Vars(r)["id"], req.Query, req.TopK)
	if err != nil {
		sendError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, SearchResponse{
		Results: toChunks(chunks),
		Latency: float64(time.Since(start).Microseconds()) / 1000.0,
	})
}

// HandleCreateConversation handles POST /conversations requests.
func (h *Handler) HandleCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req CreateConversationRequest
	if !decode(w, r, &req) {
		return
	}
	conv, err := h.svc.Conversation.Create(r.Context(), principalFrom(r), req.MaterialID, req.Title)
	if err != nil {
		sendError(w, err)
		return
	}
	sendJSON(w, http.StatusCreated, toConversation(conv))
}

// HandleListConversations handles GET /conversations requests.
func (h *Handler) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.svc.Conversation.List(r.Context(), principalFrom(r))
	if err != nil {
		sendError(w, err)
		return
	}
	out := make([]ConversationResponse, len(convs))
	for i := range convs {
		out[i] = toConversation(&convs[i])
	}
	sendJSON(w, http.StatusOK, out)
}

// HandleGetConversation handles GET /conversations/{id} requests.
func (h *Handler) HandleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.svc.Conversation.Get(r.Context(), principalFrom(r), mux.Vars(r)["id"])
	if err != nil {
		sendError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, toConversation(conv))
}

// HandleCloseConversation handles POST /conversations/{id}/close requests.
func (h *Handler) HandleCloseConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Conversation.Close(r.Context(), principalFrom(r), mux.Vars(r)["id"]); err != nil {
		sendError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteConversation handles DELETE /conversations/{id} requests.
func (h *Handler) HandleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Conversation.Delete(r.Context(), principalFrom(r), mux.Vars(r)["id"]); err != nil {
		sendError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleHistory handles GET /conversations/{id}/messages requests.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	limit := DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	messages, err := h.svc.Conversation.History(r.Context(), principalFrom(r), mux.Vars(r)["id"], limit)
	if err != nil {
		sendError(w, err)
		return
	}
	out := make([]MessageResponse, len(messages))
	for i := range messages {
		out[i] = toMessage(&messages[i])
	}
	sendJSON(w, http.StatusOK, out)
}

// HandleSendMessage handles POST /conversations/{id}/messages requests.
// A turn sent while the principal is over the usage limit is still
// persisted and answered with 200, flagged with quota_exceeded. Only a quota
// error that carries no turn maps to 429.
func (h *Handler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !decode(w, r, &req) {
		return
	}

	turn, err := h.svc.Conversation.SendMessage(r.Context(), principalFrom(r), mux.Vars(r)["id"], req.Text)
	quota := errors.Is(err, domain.ErrQuotaExceeded)
	if err != nil && (!quota || turn == nil) {
		sendError(w, err)
		return
	}

	sendJSON(w, http.StatusOK, TurnResponse{
		Conversation:  toConversation(turn.Conversation),
		UserMessage:   toMessage(turn.UserMessage),
		Answer:        toMessage(turn.AssistantMessage),
		Sources:       toChunks(turn.Context.Chunks),
		DroppedChunks: turn.Context.Dropped,
		Usage:         toUsage(turn.Usage),
		QuotaExceeded: quota,
	})
}
