package httpapi

import (
	"net/http"
	"strings"

	"wisefido-ward/internal/service"

	"go.uber.org/zap"
)

// HistoryHandler 出院历史 Handler
type HistoryHandler struct {
	history *service.HistoryService
	logger  *zap.Logger
}

func NewHistoryHandler(history *service.HistoryService, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{history: history, logger: logger}
}

// ServeHTTP 实现 http.Handler 接口
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/ward/api/v1/history" && r.Method == http.MethodGet:
		h.List(w, r)
	case strings.HasPrefix(path, "/ward/api/v1/history/"):
		id := strings.TrimPrefix(path, "/ward/api/v1/history/")
		if id == "" || strings.Contains(id, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodPut:
			h.Update(w, r, id)
		case http.MethodDelete:
			h.Delete(w, r, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// List 最近出院记录（按出院时间倒序）
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.history.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(records))
}

// Update 修订历史记录字段
func (h *HistoryHandler) Update(w http.ResponseWriter, r *http.Request, id string) {
	var fields map[string]any
	if err := readBodyJSON(r, 1<<20, &fields); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if len(fields) == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("no fields to update"))
		return
	}
	delete(fields, "recordId")
	if err := h.history.Update(r.Context(), id, fields); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"recordId": id}))
}

// Delete 删除历史记录
func (h *HistoryHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.history.Delete(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"deleted": id}))
}
