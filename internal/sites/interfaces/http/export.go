package http

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"terralens/internal/api/response"
	"terralens/internal/observability/metrics"
	sites "terralens/internal/sites/domain"
)

var exportHeader = []string{"id", "name", "location", "operator", "status", "extractionRate", "energyConsumption", "waterUsage"}

func exportRow(site sites.MiningSite) []string {
	return []string{
		site.ID,
		site.Name,
		site.Location,
		site.Operator,
		string(site.Status),
		strconv.FormatFloat(site.OperationalData.ExtractionRate, 'f', -1, 64),
		strconv.FormatFloat(site.OperationalData.EnergyConsumption, 'f', -1, 64),
		strconv.FormatFloat(site.OperationalData.WaterUsage, 'f', -1, 64),
	}
}

// BuildSitesCSV renders the site table as CSV.
func BuildSitesCSV(list []sites.MiningSite) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, site := range list {
		if err := writer.Write(exportRow(site)); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildSitesXLSX renders the site table as a workbook with one sheet.
func BuildSitesXLSX(list []sites.MiningSite) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "sites"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	for i, title := range exportHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, title)
	}
	for i, site := range list {
		row := i + 2
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), site.ID)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), site.Name)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", row), site.Location)
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", row), site.Operator)
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", row), string(site.Status))
		_ = f.SetCellValue(sheet, fmt.Sprintf("F%d", row), site.OperationalData.ExtractionRate)
		_ = f.SetCellValue(sheet, fmt.Sprintf("G%d", row), site.OperationalData.EnergyConsumption)
		_ = f.SetCellValue(sheet, fmt.Sprintf("H%d", row), site.OperationalData.WaterUsage)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "csv", "text/csv", BuildSitesCSV)
}

func (h *Handler) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", BuildSitesXLSX)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request, format, contentType string, build func([]sites.MiningSite) ([]byte, error)) {
	start := time.Now()
	list, err := h.repo.List(r.Context())
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(start))
		response.Error(w, http.StatusInternalServerError, "Failed to export sites.")
		return
	}
	data, err := build(list)
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(start))
		response.Error(w, http.StatusInternalServerError, "Failed to export sites.")
		return
	}
	metrics.ObserveExport(format, metrics.ResultSuccess, time.Since(start))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"sites.%s\"", format))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
