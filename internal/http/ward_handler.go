package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"wisefido-ward/internal/domain"
	"wisefido-ward/internal/export"
	"wisefido-ward/internal/projector"
	"wisefido-ward/internal/service"
	"wisefido-ward/internal/store"

	"go.uber.org/zap"
)

// WardHandler 病区普查 Handler：投影读取 + 工作流操作
type WardHandler struct {
	ward      *service.WardService
	projector *projector.Projector
	logger    *zap.Logger
}

func NewWardHandler(ward *service.WardService, proj *projector.Projector, logger *zap.Logger) *WardHandler {
	return &WardHandler{ward: ward, projector: proj, logger: logger}
}

// writeServiceError 服务层错误到 HTTP 状态码的映射
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrBedNotFound),
		errors.Is(err, service.ErrHistoryNotFound),
		errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, Fail(err.Error()))
	case errors.Is(err, service.ErrNoPatient),
		errors.Is(err, service.ErrBedOccupied),
		errors.Is(err, service.ErrInvalidSector):
		writeJSON(w, http.StatusUnprocessableEntity, Fail(err.Error()))
	case errors.Is(err, store.ErrConflict):
		writeJSON(w, http.StatusConflict, Fail(err.Error()))
	default:
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
	}
}

// ServeHTTP 实现 http.Handler 接口
func (h *WardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/ward/api/v1/census" && r.Method == http.MethodGet:
		h.GetCensus(w, r)
	case path == "/ward/api/v1/census/export" && r.Method == http.MethodGet:
		h.ExportCensus(w, r)
	case path == "/ward/api/v1/beds" && r.Method == http.MethodPost:
		h.AddBed(w, r)
	case path == "/ward/api/v1/beds/move" && r.Method == http.MethodPost:
		h.MovePatient(w, r)
	case strings.HasPrefix(path, "/ward/api/v1/beds/"):
		h.serveBed(w, r, strings.TrimPrefix(path, "/ward/api/v1/beds/"))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *WardHandler) serveBed(w http.ResponseWriter, r *http.Request, rest string) {
	parts := strings.Split(rest, "/")
	bedID := parts[0]
	if bedID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch {
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.DeleteBed(w, r, bedID)
	case len(parts) == 2 && parts[1] == "renumber" && r.Method == http.MethodPost:
		h.RenumberBed(w, r, bedID)
	case len(parts) == 2 && parts[1] == "patient" && r.Method == http.MethodPut:
		h.UpdatePatient(w, r, bedID)
	case len(parts) == 2 && parts[1] == "status" && r.Method == http.MethodPost:
		h.UpdatePatientStatus(w, r, bedID)
	case len(parts) == 2 && parts[1] == "discharge" && r.Method == http.MethodPost:
		h.Discharge(w, r, bedID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// GetCensus 当前投影的分区视图
func (h *WardHandler) GetCensus(w http.ResponseWriter, r *http.Request) {
	sections := domain.BuildSections(h.projector.Beds())
	writeJSON(w, http.StatusOK, Ok(sections))
}

// ExportCensus 导出当前投影为 Excel
func (h *WardHandler) ExportCensus(w http.ResponseWriter, r *http.Request) {
	sections := domain.BuildSections(h.projector.Beds())
	data, err := export.CensusWorkbook(sections)
	if err != nil {
		h.logger.Error("census export failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}
	filename := fmt.Sprintf("Censo_Hospitalar_%s.xlsx", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// AddBed 新增床位
func (h *WardHandler) AddBed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sector string `json:"sector"`
	}
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	bed, err := h.ward.AddBed(r.Context(), domain.Sector(req.Sector))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(bed))
}

// DeleteBed 删除床位
func (h *WardHandler) DeleteBed(w http.ResponseWriter, r *http.Request, bedID string) {
	if err := h.ward.DeleteBed(r.Context(), bedID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"deleted": bedID}))
}

// RenumberBed 修改床号
func (h *WardHandler) RenumberBed(w http.ResponseWriter, r *http.Request, bedID string) {
	var req struct {
		Number int `json:"number"`
	}
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if err := h.ward.RenumberBed(r.Context(), bedID, req.Number); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"bedId": bedID, "number": req.Number}))
}

// UpdatePatient 写入/更新/清空床位上的患者
func (h *WardHandler) UpdatePatient(w http.ResponseWriter, r *http.Request, bedID string) {
	var req struct {
		Patient *domain.Patient `json:"patient"`
	}
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	patient, err := h.ward.UpdatePatient(r.Context(), bedID, req.Patient)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(patient))
}

// UpdatePatientStatus 修改患者状态
func (h *WardHandler) UpdatePatientStatus(w http.ResponseWriter, r *http.Request, bedID string) {
	var req struct {
		Status      string `json:"status"`
		Destination string `json:"destination"`
	}
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if err := h.ward.UpdatePatientStatus(r.Context(), bedID, domain.PatientStatus(req.Status), req.Destination); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"bedId": bedID, "status": req.Status}))
}

// Discharge 出院
func (h *WardHandler) Discharge(w http.ResponseWriter, r *http.Request, bedID string) {
	var req struct {
		ExitTimestamp *time.Time `json:"exitTimestamp"`
	}
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if err := h.ward.Discharge(r.Context(), bedID, req.ExitTimestamp); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{"bedId": bedID}))
}

// MovePatient 移床/换床
func (h *WardHandler) MovePatient(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceBedID string `json:"sourceBedId"`
		TargetBedID string `json:"targetBedId"`
	}
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if req.SourceBedID == "" || req.TargetBedID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("sourceBedId and targetBedId are required"))
		return
	}
	if err := h.ward.Move(r.Context(), req.SourceBedID, req.TargetBedID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"sourceBedId": req.SourceBedID,
		"targetBedId": req.TargetBedID,
	}))
}
