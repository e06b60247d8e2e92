package httpapi

import (
	"net/http"
	"strings"

	"wisefido-ward/internal/domain"
	"wisefido-ward/internal/service"

	"go.uber.org/zap"
)

// PendencyHandler 待办事项 Handler：患者待办 + 通用待办
type PendencyHandler struct {
	pendencies *service.PendencyService
	logger     *zap.Logger
}

func NewPendencyHandler(pendencies *service.PendencyService, logger *zap.Logger) *PendencyHandler {
	return &PendencyHandler{pendencies: pendencies, logger: logger}
}

// ServeHTTP 实现 http.Handler 接口
func (h *PendencyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/ward/api/v1/pendencies/legacy" && r.Method == http.MethodPut:
		h.UpsertLegacy(w, r)
	case path == "/ward/api/v1/pendencies/patient" && r.Method == http.MethodGet:
		h.ListPatient(w, r)
	case path == "/ward/api/v1/pendencies/patient" && r.Method == http.MethodPost:
		h.AddPatient(w, r)
	case strings.HasPrefix(path, "/ward/api/v1/pendencies/patient/"):
		h.servePatientByID(w, r, strings.TrimPrefix(path, "/ward/api/v1/pendencies/patient/"))
	case path == "/ward/api/v1/pendencies/general" && r.Method == http.MethodGet:
		h.ListGeneral(w, r)
	case path == "/ward/api/v1/pendencies/general" && r.Method == http.MethodPost:
		h.AddGeneral(w, r)
	case strings.HasPrefix(path, "/ward/api/v1/pendencies/general/"):
		h.serveGeneralByID(w, r, strings.TrimPrefix(path, "/ward/api/v1/pendencies/general/"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *PendencyHandler) servePatientByID(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.Split(rest, "/")
	id := parts[0]
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch {
	case len(parts) == 1 && r.Method == http.MethodPut:
		h.UpdatePatient(w, r, id)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.DeletePatient(w, r, id)
	case len(parts) == 2 && parts[1] == "done" && r.Method == http.MethodPost:
		h.MarkPatientDone(w, r, id)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *PendencyHandler) serveGeneralByID(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.Split(rest, "/")
	id := parts[0]
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch {
	case len(parts) == 1 && r.Method == http.MethodPut:
		h.UpdateGeneral(w, r, id)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.DeleteGeneral(w, r, id)
	case len(parts) == 2 && parts[1] == "done" && r.Method == http.MethodPost:
		h.MarkGeneralDone(w, r, id)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// UpsertLegacy 按患者覆盖写旧式单条待办；空文本即删除
func (h *PendencyHandler) UpsertLegacy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PatientID   string `json:"patientId"`
		PatientName string `json:"patientName"`
		BedNumber   int    `json:"bedNumber"`
		Text        string `json:"text"`
	}
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if req.PatientID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("patientId is required"))
		return
	}
	if err := h.pendencies.UpsertLegacy(r.Context(), req.PatientID, req.PatientName, req.BedNumber, req.Text); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"patientId": req.PatientID}))
}

// ListPatient 患者待办列表；带 role 查询参数时按角色过滤未完成项
func (h *PendencyHandler) ListPatient(w http.ResponseWriter, r *http.Request) {
	role := strings.TrimSpace(r.URL.Query().Get("role"))
	var (
		items []domain.PatientPendency
		err   error
	)
	if role != "" {
		items, err = h.pendencies.PatientPendenciesForRole(r.Context(), role)
	} else {
		items, err = h.pendencies.ListPatientPendencies(r.Context())
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(items))
}

// AddPatient 新增独立患者待办
func (h *PendencyHandler) AddPatient(w http.ResponseWriter, r *http.Request) {
	var p domain.PatientPendency
	if err := readBodyJSON(r, 1<<20, &p); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if strings.TrimSpace(p.Text) == "" {
		writeJSON(w, http.StatusBadRequest, Fail("text is required"))
		return
	}
	if p.CreatedBy == "" {
		p.CreatedBy = r.Header.Get("X-Session-User")
	}
	id, err := h.pendencies.AddPatientPendency(r.Context(), p)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"id": id}))
}

// UpdatePatient 更新患者待办文本与接收角色
func (h *PendencyHandler) UpdatePatient(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Text          string `json:"text"`
		RecipientRole string `json:"recipientRole"`
	}
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if err := h.pendencies.UpdatePatientPendency(r.Context(), id, req.Text, req.RecipientRole); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"id": id}))
}

// MarkPatientDone 标记患者待办完成
func (h *PendencyHandler) MarkPatientDone(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.pendencies.MarkPatientPendencyDone(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"id": id}))
}

// DeletePatient 删除患者待办
func (h *PendencyHandler) DeletePatient(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.pendencies.DeletePatientPendency(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"deleted": id}))
}

// ListGeneral 通用待办列表；带 role 查询参数时按角色过滤未完成项
func (h *PendencyHandler) ListGeneral(w http.ResponseWriter, r *http.Request) {
	role := strings.TrimSpace(r.URL.Query().Get("role"))
	var (
		items []domain.GeneralPendency
		err   error
	)
	if role != "" {
		items, err = h.pendencies.GeneralPendenciesForRole(r.Context(), role)
	} else {
		items, err = h.pendencies.ListGeneralPendencies(r.Context())
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(items))
}

// AddGeneral 新增通用待办
func (h *PendencyHandler) AddGeneral(w http.ResponseWriter, r *http.Request) {
	var g domain.GeneralPendency
	if err := readBodyJSON(r, 1<<20, &g); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if strings.TrimSpace(g.Title) == "" {
		writeJSON(w, http.StatusBadRequest, Fail("title is required"))
		return
	}
	if g.CreatedBy == "" {
		g.CreatedBy = r.Header.Get("X-Session-User")
	}
	id, err := h.pendencies.AddGeneralPendency(r.Context(), g)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"id": id}))
}

// UpdateGeneral 更新通用待办字段
func (h *PendencyHandler) UpdateGeneral(w http.ResponseWriter, r *http.Request, id string) {
	var fields map[string]any
	if err := readBodyJSON(r, 1<<20, &fields); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if len(fields) == 0 {
		writeJSON(w, http.StatusBadRequest, Fail("no fields to update"))
		return
	}
	delete(fields, "id")
	if err := h.pendencies.UpdateGeneralPendency(r.Context(), id, fields); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"id": id}))
}

// MarkGeneralDone 标记通用待办完成
func (h *PendencyHandler) MarkGeneralDone(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.pendencies.MarkGeneralPendencyDone(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"id": id}))
}

// DeleteGeneral 删除通用待办
func (h *PendencyHandler) DeleteGeneral(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.pendencies.DeleteGeneralPendency(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"deleted": id}))
}
