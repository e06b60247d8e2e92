package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wisefido-ward/internal/domain"
	"wisefido-ward/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrBedNotFound 目标床位不存在（调用方不可重试）
	ErrBedNotFound = errors.New("bed not found")
	// ErrNoPatient 源床位没有患者可移动
	ErrNoPatient = errors.New("bed has no patient to move")
	// ErrBedOccupied 占用中的床位不允许删除
	ErrBedOccupied = errors.New("bed is occupied")
	// ErrInvalidSector 未知分区
	ErrInvalidSector = errors.New("unknown sector")
)

// DischargeEvent 出院事务提交后传递给尽力而为钩子的事件
type DischargeEvent struct {
	BedID   string
	Patient domain.Patient
	// Record 为 nil 表示空占位清除（不产生历史记录）
	Record    *domain.HistoryRecord
	HistoryID string
}

// PostCommitHook 出院事务提交后的副作用钩子
// 各自独立失败、独立记录日志；失败不回滚也不影响出院结果
type PostCommitHook interface {
	Name() string
	AfterDischarge(ctx context.Context, evt DischargeEvent) error
}

// WardService 病区工作流：出院、移床/换床、床位生命周期、患者编辑
type WardService struct {
	store  store.Store
	logger *zap.Logger
	hooks  []PostCommitHook
}

func NewWardService(st store.Store, logger *zap.Logger, hooks ...PostCommitHook) *WardService {
	return &WardService{store: st, logger: logger, hooks: hooks}
}

func bedRef(bedID string) store.Ref {
	return store.Ref{Collection: domain.CollectionBeds, ID: bedID}
}

func decodeBed(doc *store.Document) (*domain.Bed, error) {
	var bed domain.Bed
	if err := json.Unmarshal(doc.Data, &bed); err != nil {
		return nil, fmt.Errorf("failed to decode bed %s: %w", doc.ID, err)
	}
	bed.ID = doc.ID
	return &bed, nil
}

// Discharge 出院：单事务内归档历史记录（或静默清除空占位）并清空床位
// exitAt 为空时使用当前时间
func (s *WardService) Discharge(ctx context.Context, bedID string, exitAt *time.Time) error {
	var evt *DischargeEvent

	err := s.store.RunTransaction(ctx, func(tx store.Tx) error {
		evt = nil
		doc, err := tx.Get(bedRef(bedID))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrBedNotFound, bedID)
			}
			return err
		}
		bed, err := decodeBed(doc)
		if err != nil {
			return err
		}
		if bed.Patient == nil {
			// 床位本就为空：视为成功的空操作
			return nil
		}

		patient := *bed.Patient
		if patient.IsEmptyPlaceholder() {
			// 误触产生的空占位：只清床位，不写历史
			if err := tx.Update(bedRef(bedID), map[string]any{"patient": nil}); err != nil {
				return err
			}
			evt = &DischargeEvent{BedID: bedID, Patient: patient}
			return nil
		}

		exitType := domain.ExitDischarge
		if patient.Status == domain.StatusTransferScheduled {
			exitType = domain.ExitTransfer
		}

		archived := patient
		if exitType == domain.ExitTransfer && archived.DestinationUnit != "" {
			// 转院时将目的科室并入目的地文本
			archived.DestinationText = archived.DestinationUnit
		}

		ts := time.Now()
		if exitAt != nil {
			ts = *exitAt
		}
		record := domain.HistoryRecord{
			Patient:       archived,
			ExitType:      exitType,
			ExitTimestamp: ts,
		}
		historyID := uuid.NewString()
		if err := tx.Set(store.Ref{Collection: domain.CollectionPatientHistory, ID: historyID}, record); err != nil {
			return err
		}
		if err := tx.Update(bedRef(bedID), map[string]any{"patient": nil}); err != nil {
			return err
		}
		evt = &DischargeEvent{BedID: bedID, Patient: patient, Record: &record, HistoryID: historyID}
		return nil
	})
	if err != nil {
		return err
	}

	if evt != nil {
		s.runHooks(ctx, *evt)
	}
	return nil
}

// runHooks 执行提交后钩子；失败仅记录日志（权威状态已提交）
func (s *WardService) runHooks(ctx context.Context, evt DischargeEvent) {
	for _, hook := range s.hooks {
		if err := hook.AfterDischarge(ctx, evt); err != nil {
			s.logger.Warn("post-commit hook failed",
				zap.String("hook", hook.Name()),
				zap.String("bed_id", evt.BedID),
				zap.String("patient_id", evt.Patient.ID),
				zap.Error(err),
			)
		}
	}
}

// Move 移床/换床：单事务内在两张床位间搬移或交换患者
// 目标床位已占用时交换两名患者；不产生历史记录
func (s *WardService) Move(ctx context.Context, sourceBedID, targetBedID string) error {
	return s.store.RunTransaction(ctx, func(tx store.Tx) error {
		sourceDoc, err := tx.Get(bedRef(sourceBedID))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrBedNotFound, sourceBedID)
			}
			return err
		}
		targetDoc, err := tx.Get(bedRef(targetBedID))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrBedNotFound, targetBedID)
			}
			return err
		}

		source, err := decodeBed(sourceDoc)
		if err != nil {
			return err
		}
		target, err := decodeBed(targetDoc)
		if err != nil {
			return err
		}
		if source.Patient == nil {
			return fmt.Errorf("%w: %s", ErrNoPatient, sourceBedID)
		}

		if err := tx.Update(bedRef(targetBedID), map[string]any{"patient": source.Patient}); err != nil {
			return err
		}
		var displaced *domain.Patient
		if target.Patient != nil {
			displaced = target.Patient
		}
		return tx.Update(bedRef(sourceBedID), map[string]any{"patient": displaced})
	})
}

// AddBed 新增床位：分区内现有最大床号 + 1（分区为空时为 1）
// 编号读写不在同一事务内，并发新增同分区床位可能分到相同床号（已知取舍）
func (s *WardService) AddBed(ctx context.Context, sector domain.Sector) (*domain.Bed, error) {
	if !sector.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSector, sector)
	}

	docs, err := s.store.GetAll(ctx, domain.CollectionBeds)
	if err != nil {
		return nil, err
	}
	next := 1
	for _, doc := range docs {
		bed, err := decodeBed(&doc)
		if err != nil {
			s.logger.Error("skipping undecodable bed document", zap.String("doc_id", doc.ID), zap.Error(err))
			continue
		}
		if bed.Sector == sector && bed.Number >= next {
			next = bed.Number + 1
		}
	}

	bed := &domain.Bed{
		ID:     uuid.NewString(),
		Number: next,
		Sector: sector,
	}
	if err := s.store.Set(ctx, bedRef(bed.ID), bed); err != nil {
		return nil, err
	}
	s.logger.Info("bed added",
		zap.String("bed_id", bed.ID),
		zap.String("sector", string(sector)),
		zap.Int("number", bed.Number),
	)
	return bed, nil
}

// DeleteBed 删除床位；占用中的床位拒绝删除（防止患者记录凭空消失）
func (s *WardService) DeleteBed(ctx context.Context, bedID string) error {
	doc, err := s.store.Get(ctx, bedRef(bedID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrBedNotFound, bedID)
		}
		return err
	}
	bed, err := decodeBed(doc)
	if err != nil {
		return err
	}
	if bed.Patient != nil {
		return fmt.Errorf("%w: %s", ErrBedOccupied, bedID)
	}
	return s.store.Delete(ctx, bedRef(bedID))
}

// RenumberBed 修改床号；不校验分区内唯一性（操作员职责）
func (s *WardService) RenumberBed(ctx context.Context, bedID string, newNumber int) error {
	if newNumber <= 0 {
		return fmt.Errorf("bed number must be positive, got %d", newNumber)
	}
	err := s.store.Update(ctx, bedRef(bedID), map[string]any{"number": newNumber})
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrBedNotFound, bedID)
	}
	return err
}

// UpdatePatient 写入/更新床位上的患者；patient 为 nil 时清空床位
// 首次写入补齐 id 与入院日期/时间
func (s *WardService) UpdatePatient(ctx context.Context, bedID string, patient *domain.Patient) (*domain.Patient, error) {
	if patient != nil {
		if patient.ID == "" {
			patient.ID = uuid.NewString()
		}
		now := time.Now()
		if patient.AdmissionDate == "" {
			patient.AdmissionDate = now.Format("2006-01-02")
		}
		if patient.AdmissionTime == "" {
			patient.AdmissionTime = now.Format("15:04")
		}
		if patient.Status == "" {
			patient.Status = domain.StatusAdmitted
		}
	}
	err := s.store.Update(ctx, bedRef(bedID), map[string]any{"patient": patient})
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrBedNotFound, bedID)
	}
	if err != nil {
		return nil, err
	}
	return patient, nil
}

// UpdatePatientStatus 修改患者状态（可携带目的地）；事务内读改写避免丢失更新
func (s *WardService) UpdatePatientStatus(ctx context.Context, bedID string, status domain.PatientStatus, destination string) error {
	return s.store.RunTransaction(ctx, func(tx store.Tx) error {
		doc, err := tx.Get(bedRef(bedID))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrBedNotFound, bedID)
			}
			return err
		}
		bed, err := decodeBed(doc)
		if err != nil {
			return err
		}
		if bed.Patient == nil {
			return fmt.Errorf("%w: %s", ErrNoPatient, bedID)
		}
		patient := *bed.Patient
		patient.Status = status
		if destination != "" {
			if status == domain.StatusTransferScheduled {
				patient.DestinationUnit = destination
			} else {
				patient.DestinationText = destination
			}
		}
		return tx.Update(bedRef(bedID), map[string]any{"patient": patient})
	})
}

// CensusSections 当前床位的分区视图（来自权威存储，非投影）
func (s *WardService) CensusSections(ctx context.Context) ([]domain.CensusSection, error) {
	docs, err := s.store.GetAll(ctx, domain.CollectionBeds)
	if err != nil {
		return nil, err
	}
	beds := make([]domain.Bed, 0, len(docs))
	for _, doc := range docs {
		bed, err := decodeBed(&doc)
		if err != nil {
			s.logger.Error("skipping undecodable bed document", zap.String("doc_id", doc.ID), zap.Error(err))
			continue
		}
		beds = append(beds, *bed)
	}
	domain.SortBeds(beds)
	return domain.BuildSections(beds), nil
}
