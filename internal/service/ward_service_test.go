package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"wisefido-ward/internal/domain"
	"wisefido-ward/internal/service"
	"wisefido-ward/internal/store"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedBed(t *testing.T, s store.Store, bed domain.Bed) {
	t.Helper()
	err := s.Set(context.Background(), store.Ref{Collection: domain.CollectionBeds, ID: bed.ID}, bed)
	require.NoError(t, err)
}

func getBed(t *testing.T, s store.Store, bedID string) domain.Bed {
	t.Helper()
	doc, err := s.Get(context.Background(), store.Ref{Collection: domain.CollectionBeds, ID: bedID})
	require.NoError(t, err)
	var bed domain.Bed
	require.NoError(t, json.Unmarshal(doc.Data, &bed))
	bed.ID = doc.ID
	return bed
}

func historyRecords(t *testing.T, s store.Store) []domain.HistoryRecord {
	t.Helper()
	docs, err := s.GetAll(context.Background(), domain.CollectionPatientHistory)
	require.NoError(t, err)
	records := make([]domain.HistoryRecord, 0, len(docs))
	for _, doc := range docs {
		var rec domain.HistoryRecord
		require.NoError(t, json.Unmarshal(doc.Data, &rec))
		rec.RecordID = doc.ID
		records = append(records, rec)
	}
	return records
}

func admittedPatient(id, name string) *domain.Patient {
	return &domain.Patient{
		ID:                 id,
		Name:               name,
		Age:                60,
		AdmissionDate:      "2026-08-01",
		AdmissionTime:      "10:30",
		DiagnosisSuspicion: "Pneumonia",
		Status:             domain.StatusAdmitted,
	}
}

func TestDischarge_ArchivesAndClearsBed(t *testing.T) {
	st := store.NewMemoryStore()
	ward := service.NewWardService(st, zap.NewNop())

	seedBed(t, st, domain.Bed{ID: "sv-1", Number: 1, Sector: domain.SectorRedRoom, Patient: admittedPatient("p1", "Maria")})

	exitAt := time.Date(2026, 8, 20, 14, 0, 0, 0, time.UTC)
	require.NoError(t, ward.Discharge(context.Background(), "sv-1", &exitAt))

	bed := getBed(t, st, "sv-1")
	require.Nil(t, bed.Patient)

	records := historyRecords(t, st)
	require.Len(t, records, 1)
	require.Equal(t, "Maria", records[0].Name)
	require.Equal(t, domain.ExitDischarge, records[0].ExitType)
	require.True(t, exitAt.Equal(records[0].ExitTimestamp))
	// 历史文档 id 独立生成，患者原始 id 保留在记录内
	require.NotEqual(t, records[0].ID, records[0].RecordID)
	require.Equal(t, "p1", records[0].ID)
}

func TestDischarge_TransferUsesDestinationUnit(t *testing.T) {
	st := store.NewMemoryStore()
	ward := service.NewWardService(st, zap.NewNop())

	p := admittedPatient("p1", "João")
	p.Status = domain.StatusTransferScheduled
	p.DestinationText = "old text"
	p.DestinationUnit = "ICU"
	seedBed(t, st, domain.Bed{ID: "sv-1", Number: 1, Sector: domain.SectorRedRoom, Patient: p})

	require.NoError(t, ward.Discharge(context.Background(), "sv-1", nil))

	records := historyRecords(t, st)
	require.Len(t, records, 1)
	require.Equal(t, domain.ExitTransfer, records[0].ExitType)
	require.Equal(t, "ICU", records[0].DestinationText)
}

func TestDischarge_EmptyPlaceholderWritesNoHistory(t *testing.T) {
	st := store.NewMemoryStore()
	ward := service.NewWardService(st, zap.NewNop())

	seedBed(t, st, domain.Bed{ID: "sv-1", Number: 1, Sector: domain.SectorRedRoom, Patient: &domain.Patient{
		ID:   "p1",
		Name: "   ",
	}})

	require.NoError(t, ward.Discharge(context.Background(), "sv-1", nil))

	require.Nil(t, getBed(t, st, "sv-1").Patient)
	require.Empty(t, historyRecords(t, st))
}

func TestDischarge_EmptyBedIsNoop(t *testing.T) {
	st := store.NewMemoryStore()
	ward := service.NewWardService(st, zap.NewNop())

	seedBed(t, st, domain.Bed{ID: "sv-1", Number: 1, Sector: domain.SectorRedRoom})

	require.NoError(t, ward.Discharge(context.Background(), "sv-1", nil))
	require.Empty(t, historyRecords(t, st))
}

func TestDischarge_UnknownBedWritesNothing(t *testing.T) {
	st := store.NewMemoryStore()
	ward := service.NewWardService(st, zap.NewNop())

	err := ward.Discharge(context.Background(), "ghost", nil)
	require.ErrorIs(t, err, service.ErrBedNotFound)
	require.Empty(t, historyRecords(t, st))
}

type recordingHook struct {
	name   string
	events []service.DischargeEvent
	err    error
}

func (h *recordingHook) Name() string { return h.name }

func (h *recordingHook) AfterDischarge(ctx context.Context, evt service.DischargeEvent) error {
	h.events = append(h.events, evt)
	return h.err
}

func TestDischarge_RunsHooksAfterCommit(t *testing.T) {
	st := store.NewMemoryStore()
	failing := &recordingHook{name: "failing", err: errors.New("webhook down")}
	recording := &recordingHook{name: "recording"}
	ward := service.NewWardService(st, zap.NewNop(), failing, recording)

	seedBed(t, st, domain.Bed{ID: "sv-1", Number: 1, Sector: domain.SectorRedRoom, Patient: admittedPatient("p1", "Maria")})

	// 钩子失败不影响出院结果，后续钩子照常执行
	require.NoError(t, ward.Discharge(context.Background(), "sv-1", nil))
	require.Len(t, failing.events, 1)
	require.Len(t, recording.events, 1)
	require.Equal(t, "p1", recording.events[0].Patient.ID)
	require.NotNil(t, recording.events[0].Record)
}

func TestDischarge_NoHooksForUnknownBed(t *testing.T) {
	st := store.NewMemoryStore()
	hook := &recordingHook{name: "recording"}
	ward := service.NewWardService(st, zap.NewNop(), hook)

	require.Error(t, ward.Discharge(context.Background(), "ghost", nil))
	require.Empty(t, hook.events)
}

func TestMove_ToEmptyBed(t *testing.T) {
	st := store.NewMemoryStore()
	ward := service.NewWardService(st, zap.NewNop())

	seedBed(t, st, domain.Bed{ID: "sv-1", Number: 1, Sector: domain.SectorRedRoom, Patient: admittedPatient("p1", "Maria")})
	seedBed(t, st, domain.Bed{ID: "ef-1", Number: 1, Sector: domain.SectorFemaleWard})

	require.NoError(t, ward.Move(context.Background(), "sv-1", "ef-1"))

	require.Nil(t, getBed(t, st, "sv-1").Patient)
	target := getBed(t, st, "ef-1")
	require.NotNil(t, target.Patient)
	require.Equal(t, "p1", target.Patient.ID)
}

func TestMove_SwapsOccupiedBeds(t *testing.T) {
	st := store.NewMemoryStore()
	ward := service.NewWardService(st, zap.NewNop())

	seedBed(t, st, domain.Bed{ID: "sv-1", Number: 1, Sector: domain.SectorRedRoom, Patient: admittedPatient("p1", "Maria")})
	seedBed(t, st, domain.Bed{ID: "sv-2", Number: 2, Sector: domain.SectorRedRoom, Patient: admittedPatient("p2", "João")})

	require.NoError(t, ward.Move(context.Background(), "sv-1", "sv-2"))

	source := getBed(t, st, "sv-1")
	target := getBed(t, st, "sv-2")
	require.NotNil(t, source.Patient)
	require.NotNil(t, target.Patient)
	require.Equal(t, "p2", source.Patient.ID)
	require.Equal(t, "p1", target.Patient.ID)
	// 移床不产生历史记录
	require.Empty(t, historyRecords(t, st))
}

func TestMove_SourceWithoutPatient(t *testing.T) {
	st := store.NewMemoryStore()
	ward := service.NewWardService(st, zap.NewNop())

	seedBed(t, st, domain.Bed{ID: "sv-1", Number: 1, Sector: domain.SectorRedRoom})
	seedBed(t, st, domain.Bed{ID: "sv-2", Number: 2, Sector: domain.SectorRedRoom})

	err := ward.Move(context.Background(), "sv-1", "sv-2")
	require.ErrorIs(t, err, service.ErrNoPatient)
}

func TestMove_UnknownTarget(t *testing.T) {
	st := store.NewMemoryStore()
	ward := service.NewWardService(st, zap.NewNop())

	seedBed(t, st, domain.Bed{ID: "sv-1", Number: 1, Sector: domain.SectorRedRoom, Patient: admittedPatient("p1", "Maria")})

	err := ward.Move(context.Background(), "sv-1", "ghost")
	require.ErrorIs(t, err, service.ErrBedNotFound)
	// 源床位不受影响
	require.NotNil(t, getBed(t, st, "sv-1").Patient)
}

func TestAddBed_NumbersFromSectorMax(t *testing.T) {
	st := store.NewMemoryStore()
	ward := service.NewWardService(st, zap.NewNop())
	ctx := context.Background()

	// 分区内现有 {1,2,4}：下一床号为 5（不补洞）
	seedBed(t, st, domain.Bed{ID: "a", Number: 1, Sector: domain.SectorRedRoom})
	seedBed(t, st, domain.Bed{ID: "b", Number: 2, Sector: domain.SectorRedRoom})
	seedBed(t, st, domain.Bed{ID: "c", Number: 4, Sector: domain.SectorRedRoom})
	// 其他分区的床号不参与计算
	seedBed(t, st, domain.Bed{ID: "d", Number: 9, Sector: domain.SectorMaleWard})

	bed, err := ward.AddBed(ctx, domain.SectorRedRoom)
	require.NoError(t, err)
	require.Equal(t, 5, bed.Number)
	require.Equal(t, domain.SectorRedRoom, bed.Sector)
	require.NotEmpty(t, bed.ID)
}

func TestAddBed_EmptySectorStartsAtOne(t *testing.T) {
	st := store.NewMemoryStore()
	ward := service.NewWardService(st, zap.NewNop())

	bed, err := ward.AddBed(context.Background(), domain.SectorOverflow)
	require.NoError(t, err)
	require.Equal(t, 1, bed.Number)
}

func TestAddBed_RejectsUnknownSector(t *testing.T) {
	st := store.NewMemoryStore()
	ward := service.NewWardService(st, zap.NewNop())

	_, err := ward.AddBed(context.Background(), domain.Sector("UTI"))
	require.ErrorIs(t, err, service.ErrInvalidSector)
}

func TestDeleteBed_RefusesOccupied(t *testing.T) {
	st := store.NewMemoryStore()
	ward := service.NewWardService(st, zap.NewNop())
	ctx := context.Background()

	seedBed(t, st, domain.Bed{ID: "sv-1", Number: 1, Sector: domain.SectorRedRoom, Patient: admittedPatient("p1", "Maria")})

	err := ward.DeleteBed(ctx, "sv-1")
	require.ErrorIs(t, err, service.ErrBedOccupied)
	require.NotNil(t, getBed(t, st, "sv-1").Patient)
}

func TestDeleteBed_RemovesEmptyBed(t *testing.T) {
	st := store.NewMemoryStore()
	ward := service.NewWardService(st, zap.NewNop())
	ctx := context.Background()

	seedBed(t, st, domain.Bed{ID: "sv-1", Number: 1, Sector: domain.SectorRedRoom})

	require.NoError(t, ward.DeleteBed(ctx, "sv-1"))
	_, err := st.Get(ctx, store.Ref{Collection: domain.CollectionBeds, ID: "sv-1"})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteBed_UnknownBed(t *testing.T) {
	st := store.NewMemoryStore()
	ward := service.NewWardService(st, zap.NewNop())

	err := ward.DeleteBed(context.Background(), "ghost")
	require.ErrorIs(t, err, service.ErrBedNotFound)
}

func TestRenumberBed(t *testing.T) {
	st := store.NewMemoryStore()
	ward := service.NewWardService(st, zap.NewNop())
	ctx := context.Background()

	seedBed(t, st, domain.Bed{ID: "sv-1", Number: 1, Sector: domain.SectorRedRoom})

	require.NoError(t, ward.RenumberBed(ctx, "sv-1", 7))
	require.Equal(t, 7, getBed(t, st, "sv-1").Number)

	require.Error(t, ward.RenumberBed(ctx, "sv-1", 0))
	require.ErrorIs(t, ward.RenumberBed(ctx, "ghost", 3), service.ErrBedNotFound)
}

func TestUpdatePatient_FillsDefaults(t *testing.T) {
	st := store.NewMemoryStore()
	ward := service.NewWardService(st, zap.NewNop())
	ctx := context.Background()

	seedBed(t, st, domain.Bed{ID: "sv-1", Number: 1, Sector: domain.SectorRedRoom})

	patient, err := ward.UpdatePatient(ctx, "sv-1", &domain.Patient{Name: "Maria"})
	require.NoError(t, err)
	require.NotEmpty(t, patient.ID)
	require.NotEmpty(t, patient.AdmissionDate)
	require.NotEmpty(t, patient.AdmissionTime)
	require.Equal(t, domain.StatusAdmitted, patient.Status)

	bed := getBed(t, st, "sv-1")
	require.NotNil(t, bed.Patient)
	require.Equal(t, patient.ID, bed.Patient.ID)
}

func TestUpdatePatient_NilClearsBed(t *testing.T) {
	st := store.NewMemoryStore()
	ward := service.NewWardService(st, zap.NewNop())
	ctx := context.Background()

	seedBed(t, st, domain.Bed{ID: "sv-1", Number: 1, Sector: domain.SectorRedRoom, Patient: admittedPatient("p1", "Maria")})

	patient, err := ward.UpdatePatient(ctx, "sv-1", nil)
	require.NoError(t, err)
	require.Nil(t, patient)
	require.Nil(t, getBed(t, st, "sv-1").Patient)
}

func TestUpdatePatientStatus_RoutesDestination(t *testing.T) {
	st := store.NewMemoryStore()
	ward := service.NewWardService(st, zap.NewNop())
	ctx := context.Background()

	seedBed(t, st, domain.Bed{ID: "sv-1", Number: 1, Sector: domain.SectorRedRoom, Patient: admittedPatient("p1", "Maria")})

	require.NoError(t, ward.UpdatePatientStatus(ctx, "sv-1", domain.StatusTransferScheduled, "Hospital Central"))
	bed := getBed(t, st, "sv-1")
	require.Equal(t, domain.StatusTransferScheduled, bed.Patient.Status)
	require.Equal(t, "Hospital Central", bed.Patient.DestinationUnit)

	require.NoError(t, ward.UpdatePatientStatus(ctx, "sv-1", domain.StatusDischarged, "casa"))
	bed = getBed(t, st, "sv-1")
	require.Equal(t, domain.StatusDischarged, bed.Patient.Status)
	require.Equal(t, "casa", bed.Patient.DestinationText)
}

func TestUpdatePatientStatus_EmptyBed(t *testing.T) {
	st := store.NewMemoryStore()
	ward := service.NewWardService(st, zap.NewNop())

	seedBed(t, st, domain.Bed{ID: "sv-1", Number: 1, Sector: domain.SectorRedRoom})
	err := ward.UpdatePatientStatus(context.Background(), "sv-1", domain.StatusDischarged, "")
	require.ErrorIs(t, err, service.ErrNoPatient)
}

func TestCensusSections_GroupsByDisplayOrder(t *testing.T) {
	st := store.NewMemoryStore()
	ward := service.NewWardService(st, zap.NewNop())

	seedBed(t, st, domain.Bed{ID: "ec-1", Number: 1, Sector: domain.SectorOverflow})
	seedBed(t, st, domain.Bed{ID: "sv-2", Number: 2, Sector: domain.SectorRedRoom})
	seedBed(t, st, domain.Bed{ID: "sv-1", Number: 1, Sector: domain.SectorRedRoom})

	sections, err := ward.CensusSections(context.Background())
	require.NoError(t, err)
	require.Len(t, sections, 4)
	require.Equal(t, domain.SectorRedRoom, sections[0].Sector)
	require.Len(t, sections[0].Beds, 2)
	require.Equal(t, 1, sections[0].Beds[0].Number)
	require.Equal(t, 2, sections[0].Beds[1].Number)
	require.Equal(t, domain.SectorOverflow, sections[3].Sector)
	require.Len(t, sections[3].Beds, 1)
	// 无床位的分区也保留空段
	require.Empty(t, sections[1].Beds)
	require.Empty(t, sections[2].Beds)
}
