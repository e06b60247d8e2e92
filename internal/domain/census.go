package domain

import (
	"sort"
	"strings"
	"time"
)

// 集合名（文档存储）
const (
	CollectionBeds              = "beds"
	CollectionPatientHistory    = "patient-history"
	CollectionPatientPendencies = "patient-pendencies"
	CollectionGeneralPendencies = "general-pendencies"
	CollectionKPIs              = "kpis"
)

// Sector 病区（Setor）：四个固定分区
type Sector string

const (
	SectorRedRoom    Sector = "Sala Vermelha"
	SectorFemaleWard Sector = "Enfermaria Feminina"
	SectorMaleWard   Sector = "Enfermaria Masculina"
	SectorOverflow   Sector = "Extras/Corredor"
)

// SectorsInDisplayOrder 分区展示顺序（普查页面/导出使用）
var SectorsInDisplayOrder = []Sector{
	SectorRedRoom,
	SectorFemaleWard,
	SectorMaleWard,
	SectorOverflow,
}

// Valid 校验是否为已知分区
func (s Sector) Valid() bool {
	switch s {
	case SectorRedRoom, SectorFemaleWard, SectorMaleWard, SectorOverflow:
		return true
	}
	return false
}

// PatientStatus 患者状态
type PatientStatus string

const (
	StatusAdmitted          PatientStatus = "Internado"
	StatusDischarged        PatientStatus = "Alta"
	StatusTransferScheduled PatientStatus = "Regulado"
	StatusAwaitingTransport PatientStatus = "Aguardando Transporte"
)

// ExitType 离院类型
type ExitType string

const (
	ExitDischarge ExitType = "Alta"
	ExitTransfer  ExitType = "Regulação"
)

// Patient 占用床位的患者（嵌入在 Bed 文档内）
type Patient struct {
	ID                      string        `json:"id"`
	Name                    string        `json:"name"`
	Age                     int           `json:"age"`
	AdmissionDate           string        `json:"admissionDate"`
	AdmissionTime           string        `json:"admissionTime"`
	Resource                string        `json:"resource"`
	DiagnosisSuspicion      string        `json:"diagnosisSuspicion"`
	ObservationText         string        `json:"observationText"`
	Status                  PatientStatus `json:"status"`
	DestinationText         string        `json:"destinationText,omitempty"`
	DestinationUnit         string        `json:"destinationUnit,omitempty"`
	TransferReferenceNumber string        `json:"transferReferenceNumber,omitempty"`
}

// IsEmptyPlaceholder 姓名与诊断怀疑均为空白：视为误触产生的空占位
// 出院时只清空床位，不写历史记录
func (p *Patient) IsEmptyPlaceholder() bool {
	return strings.TrimSpace(p.Name) == "" && strings.TrimSpace(p.DiagnosisSuspicion) == ""
}

// Bed 床位（Leito）：最多容纳一名患者
type Bed struct {
	ID      string   `json:"id"`
	Number  int      `json:"number"`
	Sector  Sector   `json:"sector"`
	Patient *Patient `json:"patient"`
}

// HistoryRecord 离院历史记录（追加写入 patient-history 集合）
// 文档 id 独立生成，患者原始 id 保留在嵌入的 Patient 内
type HistoryRecord struct {
	Patient
	ExitType      ExitType  `json:"exitType"`
	ExitTimestamp time.Time `json:"exitTimestamp"`
	// RecordID 读取时填充为文档 id（编辑/删除历史记录用）
	RecordID string `json:"recordId,omitempty"`
}

// PendencyStatus 待办状态
type PendencyStatus string

const (
	PendencyPending PendencyStatus = "pendente"
	PendencyDone    PendencyStatus = "concluida"
)

// PendencyKindLegacy 旧式单槽待办的标记（文档 id == 患者 id）
const PendencyKindLegacy = "legacy"

// PatientPendency 患者待办
// 两种键空间并存：旧式单槽（文档 id = patientId，每患者至多一条）
// 与离散待办（文档 id 为生成 id，每患者可多条）
type PatientPendency struct {
	ID            string         `json:"id,omitempty"`
	Kind          string         `json:"kind,omitempty"`
	PatientID     string         `json:"patientId"`
	PatientName   string         `json:"patientName"`
	BedNumber     int            `json:"bedNumber"`
	Text          string         `json:"text"`
	Status        PendencyStatus `json:"status"`
	RecipientRole string         `json:"recipientRole,omitempty"`
	CreatedBy     string         `json:"createdBy,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Priority 通用待办优先级
type Priority string

const (
	PriorityLow    Priority = "baixa"
	PriorityMedium Priority = "media"
	PriorityHigh   Priority = "alta"
)

// GeneralPendency 通用待办（不关联患者）
type GeneralPendency struct {
	ID            string         `json:"id,omitempty"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Priority      Priority       `json:"priority"`
	Status        PendencyStatus `json:"status"`
	RecipientRole string         `json:"recipientRole,omitempty"`
	CreatedBy     string         `json:"createdBy,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// KPI 累计计数器（dashboard 消费）
type KPI struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Value int    `json:"value"`
	Color string `json:"color"`
}

// KPI 计数器名（文档 id）
const (
	KPIRegulations       = "outpatient"
	KPITotalExits        = "exit_to_app"
	KPIRegulationExits   = "local_hospital"
	KPIAwaitingTransport = "ambulance"
	KPIPendencies        = "person_alert"
)

// DefaultKPIs 初始 KPI 集合（集合为空时播种）
func DefaultKPIs() []KPI {
	return []KPI{
		{Name: KPIRegulations, Title: "Regulações", Value: 0, Color: "blue"},
		{Name: KPITotalExits, Title: "Saídas (Total)", Value: 0, Color: "green"},
		{Name: KPIRegulationExits, Title: "Saídas Regulação", Value: 0, Color: "blue"},
		{Name: KPIAwaitingTransport, Title: "Aguard. Transporte", Value: 0, Color: "orange"},
		{Name: KPIPendencies, Title: "Pendências", Value: 0, Color: "red"},
	}
}

// DefaultBeds 默认床位布局（远端 beds 集合为空时一次性播种）
// 固定 id：重复播种只会覆盖同名文档，不会产生重复床位
func DefaultBeds() []Bed {
	return []Bed{
		{ID: "sv-1", Number: 1, Sector: SectorRedRoom},
		{ID: "sv-2", Number: 2, Sector: SectorRedRoom},
		{ID: "sv-3", Number: 3, Sector: SectorRedRoom},
		{ID: "sv-4", Number: 4, Sector: SectorRedRoom},
		{ID: "ef-1", Number: 1, Sector: SectorFemaleWard},
		{ID: "ef-2", Number: 2, Sector: SectorFemaleWard},
		{ID: "ef-3", Number: 3, Sector: SectorFemaleWard},
		{ID: "em-1", Number: 1, Sector: SectorMaleWard},
		{ID: "em-2", Number: 2, Sector: SectorMaleWard},
		{ID: "em-3", Number: 3, Sector: SectorMaleWard},
		{ID: "ec-1", Number: 1, Sector: SectorOverflow},
		{ID: "ec-2", Number: 2, Sector: SectorOverflow},
	}
}

// SortBeds 投影排序：先按分区（字典序），再按床号升序
func SortBeds(beds []Bed) {
	sort.Slice(beds, func(i, j int) bool {
		if beds[i].Sector != beds[j].Sector {
			return beds[i].Sector < beds[j].Sector
		}
		return beds[i].Number < beds[j].Number
	})
}

// CensusSection 普查分区视图（按展示顺序分组）
type CensusSection struct {
	Title  string `json:"title"`
	Sector Sector `json:"sector"`
	Beds   []Bed  `json:"beds"`
}

// BuildSections 将有序床位列表按展示顺序分组
func BuildSections(beds []Bed) []CensusSection {
	sections := make([]CensusSection, 0, len(SectorsInDisplayOrder))
	for _, sector := range SectorsInDisplayOrder {
		section := CensusSection{Title: string(sector), Sector: sector, Beds: []Bed{}}
		for _, b := range beds {
			if b.Sector == sector {
				section.Beds = append(section.Beds, b)
			}
		}
		sections = append(sections, section)
	}
	return sections
}

// VisibleToRole 角色可见性：recipientRole 为空或 "General"/"All" 时对所有角色可见，
// 否则按角色名不区分大小写匹配
func VisibleToRole(recipientRole, role string) bool {
	switch recipientRole {
	case "", "General", "All":
		return true
	}
	return strings.EqualFold(recipientRole, role)
}
