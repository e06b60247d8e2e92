package httpapi

import (
	"net/http"

	"wisefido-ward/internal/service"

	"go.uber.org/zap"
)

// KPIHandler 出口指标 Handler
type KPIHandler struct {
	kpis   *service.KPIService
	logger *zap.Logger
}

func NewKPIHandler(kpis *service.KPIService, logger *zap.Logger) *KPIHandler {
	return &KPIHandler{kpis: kpis, logger: logger}
}

// ServeHTTP 实现 http.Handler 接口
func (h *KPIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/ward/api/v1/kpis" && r.Method == http.MethodGet:
		h.List(w, r)
	case r.URL.Path == "/ward/api/v1/kpis/increment" && r.Method == http.MethodPost:
		h.Increment(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// List 计数器列表
func (h *KPIHandler) List(w http.ResponseWriter, r *http.Request) {
	kpis, err := h.kpis.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(kpis))
}

// Increment 手工调整计数器
func (h *KPIHandler) Increment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Delta int    `json:"delta"`
	}
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, Fail("name is required"))
		return
	}
	if req.Delta == 0 {
		req.Delta = 1
	}
	if err := h.kpis.Increment(r.Context(), req.Name, req.Delta); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"name": req.Name}))
}
