package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"wisefido-ward/internal/domain"
	"wisefido-ward/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PendencyService 待办子系统：患者待办（旧式单槽 + 离散）与通用待办
// 两种患者待办键空间共存于同一集合：旧式文档 id = 患者 id，离散文档 id 为生成 id
type PendencyService struct {
	store  store.Store
	logger *zap.Logger
}

func NewPendencyService(st store.Store, logger *zap.Logger) *PendencyService {
	return &PendencyService{store: st, logger: logger}
}

func patientPendencyRef(id string) store.Ref {
	return store.Ref{Collection: domain.CollectionPatientPendencies, ID: id}
}

func generalPendencyRef(id string) store.Ref {
	return store.Ref{Collection: domain.CollectionGeneralPendencies, ID: id}
}

// ---- 患者待办：旧式单槽 ----

// UpsertLegacy 旧式单槽待办：以患者 id 为存储键
// 文本非空则覆盖写入（recipientRole 固定为 "General"），文本为空则删除
func (s *PendencyService) UpsertLegacy(ctx context.Context, patientID, patientName string, bedNumber int, text string) error {
	if patientID == "" {
		return fmt.Errorf("patient id is required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return s.store.Delete(ctx, patientPendencyRef(patientID))
	}
	p := domain.PatientPendency{
		ID:            patientID,
		Kind:          domain.PendencyKindLegacy,
		PatientID:     patientID,
		PatientName:   patientName,
		BedNumber:     bedNumber,
		Text:          text,
		Status:        domain.PendencyPending,
		RecipientRole: "General",
		Timestamp:     time.Now(),
	}
	return s.store.Set(ctx, patientPendencyRef(patientID), p)
}

// ---- 患者待办：离散 ----

// AddPatientPendency 新增离散患者待办（生成 id，可携带任意 recipientRole）
func (s *PendencyService) AddPatientPendency(ctx context.Context, p domain.PatientPendency) (string, error) {
	if p.PatientID == "" {
		return "", fmt.Errorf("patient id is required")
	}
	if strings.TrimSpace(p.Text) == "" {
		return "", fmt.Errorf("pendency text is required")
	}
	p.ID = uuid.NewString()
	p.Kind = ""
	p.Status = domain.PendencyPending
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}
	if err := s.store.Set(ctx, patientPendencyRef(p.ID), p); err != nil {
		return "", err
	}
	return p.ID, nil
}

// UpdatePatientPendency 更新离散待办的文本/收件角色
func (s *PendencyService) UpdatePatientPendency(ctx context.Context, id, text, recipientRole string) error {
	fields := map[string]any{}
	if text != "" {
		fields["text"] = strings.TrimSpace(text)
	}
	if recipientRole != "" {
		fields["recipientRole"] = recipientRole
	}
	if len(fields) == 0 {
		return nil
	}
	return s.store.Update(ctx, patientPendencyRef(id), fields)
}

// MarkPatientPendencyDone 标记患者待办完成
func (s *PendencyService) MarkPatientPendencyDone(ctx context.Context, id string) error {
	return s.store.Update(ctx, patientPendencyRef(id), map[string]any{"status": domain.PendencyDone})
}

// DeletePatientPendency 删除患者待办；目标不存在不算错误（孤儿待办可安全清除）
func (s *PendencyService) DeletePatientPendency(ctx context.Context, id string) error {
	return s.store.Delete(ctx, patientPendencyRef(id))
}

// ListPatientPendencies 全部患者待办，按床号升序
func (s *PendencyService) ListPatientPendencies(ctx context.Context) ([]domain.PatientPendency, error) {
	docs, err := s.store.GetAll(ctx, domain.CollectionPatientPendencies)
	if err != nil {
		return nil, err
	}
	items := make([]domain.PatientPendency, 0, len(docs))
	for _, doc := range docs {
		var p domain.PatientPendency
		if err := json.Unmarshal(doc.Data, &p); err != nil {
			s.logger.Error("skipping undecodable pendency document", zap.String("doc_id", doc.ID), zap.Error(err))
			continue
		}
		p.ID = doc.ID
		items = append(items, p)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].BedNumber < items[j].BedNumber })
	return items, nil
}

// PatientPendenciesForRole 角色可见的未完成患者待办
func (s *PendencyService) PatientPendenciesForRole(ctx context.Context, role string) ([]domain.PatientPendency, error) {
	items, err := s.ListPatientPendencies(ctx)
	if err != nil {
		return nil, err
	}
	visible := make([]domain.PatientPendency, 0, len(items))
	for _, p := range items {
		if p.Status == domain.PendencyPending && domain.VisibleToRole(p.RecipientRole, role) {
			visible = append(visible, p)
		}
	}
	return visible, nil
}

// DeleteForPatient 清除某患者的全部待办（旧式单槽 + 离散）
// 出院提交后的尽力而为清理；不存在的文档直接跳过
func (s *PendencyService) DeleteForPatient(ctx context.Context, patientID string) error {
	if patientID == "" {
		return nil
	}
	if err := s.store.Delete(ctx, patientPendencyRef(patientID)); err != nil {
		return err
	}
	items, err := s.ListPatientPendencies(ctx)
	if err != nil {
		return err
	}
	for _, p := range items {
		if p.PatientID != patientID || p.ID == patientID {
			continue
		}
		if err := s.store.Delete(ctx, patientPendencyRef(p.ID)); err != nil {
			return err
		}
	}
	return nil
}

// ---- 通用待办 ----

// AddGeneralPendency 新增通用待办
func (s *PendencyService) AddGeneralPendency(ctx context.Context, g domain.GeneralPendency) (string, error) {
	if strings.TrimSpace(g.Title) == "" {
		return "", fmt.Errorf("pendency title is required")
	}
	g.ID = uuid.NewString()
	if g.Priority == "" {
		g.Priority = domain.PriorityMedium
	}
	g.Status = domain.PendencyPending
	if g.Timestamp.IsZero() {
		g.Timestamp = time.Now()
	}
	if err := s.store.Set(ctx, generalPendencyRef(g.ID), g); err != nil {
		return "", err
	}
	return g.ID, nil
}

// UpdateGeneralPendency 更新通用待办字段
func (s *PendencyService) UpdateGeneralPendency(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return s.store.Update(ctx, generalPendencyRef(id), fields)
}

// MarkGeneralPendencyDone 标记通用待办完成
func (s *PendencyService) MarkGeneralPendencyDone(ctx context.Context, id string) error {
	return s.store.Update(ctx, generalPendencyRef(id), map[string]any{"status": domain.PendencyDone})
}

// DeleteGeneralPendency 删除通用待办；目标不存在不算错误
func (s *PendencyService) DeleteGeneralPendency(ctx context.Context, id string) error {
	return s.store.Delete(ctx, generalPendencyRef(id))
}

// ListGeneralPendencies 全部通用待办，按时间倒序
func (s *PendencyService) ListGeneralPendencies(ctx context.Context) ([]domain.GeneralPendency, error) {
	docs, err := s.store.GetAll(ctx, domain.CollectionGeneralPendencies)
	if err != nil {
		return nil, err
	}
	items := make([]domain.GeneralPendency, 0, len(docs))
	for _, doc := range docs {
		var g domain.GeneralPendency
		if err := json.Unmarshal(doc.Data, &g); err != nil {
			s.logger.Error("skipping undecodable pendency document", zap.String("doc_id", doc.ID), zap.Error(err))
			continue
		}
		g.ID = doc.ID
		items = append(items, g)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Timestamp.After(items[j].Timestamp) })
	return items, nil
}

// GeneralPendenciesForRole 角色可见的未完成通用待办
func (s *PendencyService) GeneralPendenciesForRole(ctx context.Context, role string) ([]domain.GeneralPendency, error) {
	items, err := s.ListGeneralPendencies(ctx)
	if err != nil {
		return nil, err
	}
	visible := make([]domain.GeneralPendency, 0, len(items))
	for _, g := range items {
		if g.Status == domain.PendencyPending && domain.VisibleToRole(g.RecipientRole, role) {
			visible = append(visible, g)
		}
	}
	return visible, nil
}
