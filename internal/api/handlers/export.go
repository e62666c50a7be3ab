package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync/internal/domain/models"
	"github.com/athebyme/gomarket-platform/catalog-sync/pkg/interfaces"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Каталог"

var exportHeaders = []string{"UUID", "Код", "Артикул", "Название", "Штрихкод", "Активен", "Категория", "Изображений"}

// BuildCatalogReport строит XLSX со списком записей каталога
func BuildCatalogReport(records []models.ProductRecord) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		f.Close()
		return nil, err
	}

	for i, title := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(exportSheet, cell, title)
	}

	for row, rec := range records {
		values := []interface{}{
			rec.UUID, rec.Code, rec.SKU, rec.Name, rec.Barcode, rec.Active, rec.CategoryUUID, len(rec.Images),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(exportSheet, cell, v)
		}
	}

	// Стили
	style, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
			Size: 12,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E0E0E0"},
			Pattern: 1,
		},
	})
	lastHeader, _ := excelize.CoordinatesToCellName(len(exportHeaders), 1)
	f.SetCellStyle(exportSheet, "A1", lastHeader, style)
	f.SetColWidth(exportSheet, "A", "A", 38)
	f.SetColWidth(exportSheet, "B", "C", 14)
	f.SetColWidth(exportSheet, "D", "D", 60)
	f.SetColWidth(exportSheet, "E", "H", 16)

	return f, nil
}

// ExportCatalog отдает загруженный каталог в XLSX
func (h *SyncHandler) ExportCatalog(w http.ResponseWriter, r *http.Request) {
	records, err := h.catalog.Records(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	f, err := BuildCatalogReport(records)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	defer f.Close()

	filename := fmt.Sprintf("catalog_%s.xlsx", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := f.Write(w); err != nil {
		h.logger.ErrorWithContext(r.Context(), "Ошибка выгрузки XLSX",
			interfaces.LogField{Key: "error", Value: err.Error()},
		)
	}
}
