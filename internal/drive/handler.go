package drive

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// Handler exposes read-only Drive browsing plus an on-demand poll trigger
// over gorilla/mux, mirroring the teacher's mux-based cmd/api wiring
// (internal/drive/handler.go) rather than the gin router the rest of
// cmd/sacksd uses — grounded on the teacher's cmd/api/main.go, which
// mounted this exact package directly on a mux.Router.
type Handler struct {
	service *Service
	poller  *Poller
}

// NewHandler builds a Handler. poller may be nil, in which case /poll
// responds 503.
func NewHandler(service *Service, poller *Poller) *Handler {
	return &Handler{service: service, poller: poller}
}

// RegisterRoutes mounts this handler's endpoints on router.
func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/drive/files", h.ListFiles).Methods("GET")
	router.HandleFunc("/api/drive/files/download", h.DownloadFile).Methods("GET")
	router.HandleFunc("/api/drive/poll", h.Poll).Methods("POST")
}

func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	folderID := query.Get("folderId")
	folderPath := query.Get("path")

	var err error
	if folderPath != "" {
		folderID, err = h.service.FindFolderByPath(folderPath)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
	}

	files, err := h.service.ListFiles(folderID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(files)
}

func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	fileID := r.URL.Query().Get("fileId")
	if fileID == "" {
		http.Error(w, "fileId parameter is required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	if err := h.service.DownloadFile(fileID, w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// Poll triggers one PollOnce against the folder/dir given as query
// parameters and returns the newly staged local paths, without running
// them through the Orchestrator — staging and processing stay separate
// concerns, per spec.md's upload-then-process flow.
func (h *Handler) Poll(w http.ResponseWriter, r *http.Request) {
	if h.poller == nil {
		http.Error(w, "drive polling is not configured", http.StatusServiceUnavailable)
		return
	}

	query := r.URL.Query()
	opts := PollOptions{
		FolderID:    query.Get("folderId"),
		DownloadDir: query.Get("dir"),
	}
	if opts.DownloadDir == "" {
		http.Error(w, "dir parameter is required", http.StatusBadRequest)
		return
	}

	staged, err := h.poller.PollOnce(r.Context(), opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"staged": staged})
}
