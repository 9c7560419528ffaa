package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/alimasry/go-notebook/assets"
	"github.com/alimasry/go-notebook/store"
)

const maxAssetSize = 10 << 20

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type api struct {
	hub    *Hub
	assets assets.Store
	log    *zap.Logger
}

// NewHandler creates the HTTP handler with all routes. metricsHandler
// is mounted at /metrics when non-nil.
func NewHandler(hub *Hub, assetStore assets.Store, metricsHandler http.Handler, log *zap.Logger) http.Handler {
	a := &api{hub: hub, assets: assetStore, log: log.Named("http")}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /notebooks", a.listNotebooks)
	mux.HandleFunc("POST /notebooks", a.createNotebook)
	mux.HandleFunc("GET /notebooks/{id}", a.getNotebook)
	mux.HandleFunc("PUT /notebooks/{id}/labels", a.setLabels)
	mux.HandleFunc("GET /notebooks/{id}/batches", a.getBatches)
	mux.HandleFunc("POST /notebooks/{id}/assets", a.uploadAsset)
	mux.HandleFunc("GET /assets/{key...}", a.getAsset)
	mux.HandleFunc("DELETE /assets/{key...}", a.deleteAsset)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	// WebSocket endpoint.
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			a.log.Warn("websocket upgrade", zap.Error(err))
			return
		}
		client := newClient(hub, conn)
		go client.WritePump()
		go client.ReadPump()
	})

	return mux
}

// notebookResponse embeds the document JSON instead of its string form.
type notebookResponse struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Labels    []string        `json:"labels"`
	Content   json.RawMessage `json:"content,omitempty"`
	Version   int             `json:"version"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func toResponse(info *store.NotebookInfo, withContent bool) notebookResponse {
	resp := notebookResponse{
		ID:        info.ID,
		Title:     info.Title,
		Labels:    info.Labels,
		Version:   info.Version,
		CreatedAt: info.CreatedAt,
		UpdatedAt: info.UpdatedAt,
	}
	if withContent && info.Content != "" {
		resp.Content = json.RawMessage(info.Content)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// storeError maps store and asset errors to HTTP responses.
func (a *api) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, assets.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrInvalidVersion):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		a.log.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (a *api) listNotebooks(w http.ResponseWriter, r *http.Request) {
	infos, err := a.hub.store.List(r.Context())
	if err != nil {
		a.storeError(w, err)
		return
	}
	resp := make([]notebookResponse, len(infos))
	for i := range infos {
		resp[i] = toResponse(&infos[i], false)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) createNotebook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	info, err := a.hub.CreateNotebook(r.Context(), req.ID, req.Title)
	if err != nil {
		a.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(info, true))
}

func (a *api) getNotebook(w http.ResponseWriter, r *http.Request) {
	info, err := a.hub.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		a.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(info, true))
}

func (a *api) setLabels(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Labels []string `json:"labels"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := r.PathValue("id")
	if err := a.hub.store.SetLabels(r.Context(), id, req.Labels); err != nil {
		a.storeError(w, err)
		return
	}
	info, err := a.hub.store.Get(r.Context(), id)
	if err != nil {
		a.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(info, false))
}

func (a *api) getBatches(w http.ResponseWriter, r *http.Request) {
	from := 0
	if v := r.URL.Query().Get("from"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from")
			return
		}
		from = n
	}
	batches, err := a.hub.store.GetBatches(r.Context(), r.PathValue("id"), from)
	if err != nil {
		a.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, batches)
}

func (a *api) uploadAsset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := a.hub.store.Get(r.Context(), id); err != nil {
		a.storeError(w, err)
		return
	}
	if r.ContentLength > maxAssetSize {
		writeError(w, http.StatusRequestEntityTooLarge, "asset too large")
		return
	}

	body := http.MaxBytesReader(w, r.Body, maxAssetSize)
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key, err := a.assets.Put(r.Context(), id, r.URL.Query().Get("name"), contentType, body, r.ContentLength)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "asset too large")
			return
		}
		a.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"key": key})
}

func (a *api) getAsset(w http.ResponseWriter, r *http.Request) {
	obj, err := a.assets.Get(r.Context(), r.PathValue("key"))
	if err != nil {
		a.storeError(w, err)
		return
	}
	defer obj.Body.Close()

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	if _, err := io.Copy(w, obj.Body); err != nil {
		a.log.Warn("asset copy", zap.String("key", obj.Key), zap.Error(err))
	}
}

func (a *api) deleteAsset(w http.ResponseWriter, r *http.Request) {
	if err := a.assets.Delete(r.Context(), r.PathValue("key")); err != nil {
		a.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
