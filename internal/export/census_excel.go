package export

import (
	"bytes"
	"fmt"
	"strings"

	"wisefido-ward/internal/domain"

	"github.com/xuri/excelize/v2"
)

// CensusColumnHeader 普查导出列头
var CensusColumnHeader = []string{
	"Leito",
	"Nome do Paciente",
	"Idade",
	"Data Adm.",
	"Hora Adm.",
	"Recurso",
	"Suspeita Diagnóstica",
	"Observações",
}

// sectorTabColors 各分区工作表标签色
var sectorTabColors = map[domain.Sector]string{
	domain.SectorRedRoom:    "FEE2E2",
	domain.SectorFemaleWard: "FCE7F3",
	domain.SectorMaleWard:   "DBEAFE",
	domain.SectorOverflow:   "F3F4F6",
}

// CensusWorkbook 生成普查导出 Excel：每个分区一张工作表，末尾带占用汇总行
func CensusWorkbook(sections []domain.CensusSection) ([]byte, error) {
	f := excelize.NewFile()
	// Note: WriteTo 需要文件保持打开，这里不 defer Close

	for i, section := range sections {
		if err := addSectionSheet(f, section, i == 0); err != nil {
			f.Close()
			return nil, err
		}
	}

	f.SetActiveSheet(0)

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// sanitizeSheetName 工作表名不允许 * ? : \ / [ ]
func sanitizeSheetName(name string) string {
	replacer := strings.NewReplacer("*", "-", "?", "-", ":", "-", "\\", "-", "/", "-", "[", "-", "]", "-")
	return replacer.Replace(name)
}

func addSectionSheet(f *excelize.File, section domain.CensusSection, first bool) error {
	sheetName := sanitizeSheetName(section.Title)
	if first {
		// 复用默认工作表
		if err := f.SetSheetName("Sheet1", sheetName); err != nil {
			return fmt.Errorf("failed to rename sheet: %w", err)
		}
	} else {
		if _, err := f.NewSheet(sheetName); err != nil {
			return fmt.Errorf("failed to create sheet: %w", err)
		}
	}

	if color, ok := sectorTabColors[section.Sector]; ok {
		if err := f.SetSheetProps(sheetName, &excelize.SheetPropsOptions{TabColorRGB: &color}); err != nil {
			return fmt.Errorf("failed to set tab color: %w", err)
		}
	}

	// 列宽
	columnWidths := []float64{10, 30, 8, 12, 10, 20, 35, 50}
	for i, width := range columnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(sheetName, col, col, width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	// 分区标题行（合并单元格）
	if err := f.SetCellValue(sheetName, "A1", section.Title); err != nil {
		return fmt.Errorf("failed to set section title: %w", err)
	}
	if err := f.MergeCell(sheetName, "A1", "H1"); err != nil {
		return fmt.Errorf("failed to merge title cells: %w", err)
	}
	titleStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 16},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create title style: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A1", "H1", titleStyle); err != nil {
		return fmt.Errorf("failed to set title style: %w", err)
	}

	// 列头行
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E5E7EB"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	for col, header := range CensusColumnHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 2)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}

	// 床位数据行
	row := 3
	for _, bed := range section.Beds {
		values := bedRowValues(bed)
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
		row++
	}

	// 汇总行
	total := len(section.Beds)
	occupied := 0
	for _, bed := range section.Beds {
		if bed.Patient != nil {
			occupied++
		}
	}
	row++
	summary := []any{
		"RESUMO:",
		fmt.Sprintf("Total: %d", total),
		fmt.Sprintf("Ocupados: %d", occupied),
		fmt.Sprintf("Disponíveis: %d", total-occupied),
	}
	for col, value := range summary {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, value); err != nil {
			return fmt.Errorf("failed to set summary cell %s: %w", cell, err)
		}
	}
	return nil
}

func bedRowValues(bed domain.Bed) []any {
	if bed.Patient == nil {
		return []any{bed.Number, "— Livre —", "", "", "", "", "", ""}
	}
	p := bed.Patient
	return []any{
		bed.Number,
		p.Name,
		p.Age,
		p.AdmissionDate,
		p.AdmissionTime,
		p.Resource,
		p.DiagnosisSuspicion,
		p.ObservationText,
	}
}
