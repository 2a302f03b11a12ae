package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-codes/internal/codes/entity"
	"github.com/bitfantasy/nimo-codes/internal/codes/repository"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

var codeExportHeaders = []string{
	"编码", "机型前缀", "分类编号", "流水号", "延伸码",
	"状态", "占用类型", "产品名称", "客户", "工厂", "创建人", "创建时间",
}

// exportMaxRows 导出行数上限，防止一次拉全表
const exportMaxRows = 10000

func (s *AllocationService) exportRows(ctx context.Context, filter repository.ListFilter) ([]entity.CodeUsage, error) {
	items, total, err := s.usageRepo.List(ctx, filter, 1, exportMaxRows)
	if err != nil {
		return nil, fmt.Errorf("查询编码失败: %w", err)
	}
	if total > exportMaxRows {
		return nil, fmt.Errorf("导出数量超过上限 %d，请缩小筛选范围", exportMaxRows)
	}
	return items, nil
}

func codeStatusLabel(u *entity.CodeUsage) string {
	switch {
	case u.IsDeleted:
		return "已删除"
	case u.IsAllocated:
		return "已占用"
	default:
		return "未占用"
	}
}

// ExportXLSX 导出编码表为xlsx
func (s *AllocationService) ExportXLSX(ctx context.Context, filter repository.ListFilter) (*excelize.File, string, error) {
	items, err := s.exportRows(ctx, filter)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	sheet := "编码"
	f.SetSheetName("Sheet1", sheet)

	// 表头样式: 加粗
	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, h := range codeExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
	}

	for rowIdx := range items {
		item := &items[rowIdx]
		row := rowIdx + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), item.Model)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), item.ModelType)
		if item.ClassificationNumber != nil {
			f.SetCellValue(sheet, fmt.Sprintf("C%d", row), *item.ClassificationNumber)
		}
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), item.ActualNumber)
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), item.Extension)
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), codeStatusLabel(item))
		f.SetCellValue(sheet, fmt.Sprintf("G%d", row), item.OccupancyType)
		f.SetCellValue(sheet, fmt.Sprintf("H%d", row), item.ProductName)
		f.SetCellValue(sheet, fmt.Sprintf("I%d", row), item.Customer)
		f.SetCellValue(sheet, fmt.Sprintf("J%d", row), item.Factory)
		f.SetCellValue(sheet, fmt.Sprintf("K%d", row), item.CreatedBy)
		f.SetCellValue(sheet, fmt.Sprintf("L%d", row), item.CreatedAt.Format("2006-01-02 15:04"))
	}

	colWidths := []float64{14, 10, 8, 8, 8, 8, 10, 20, 16, 16, 12, 18}
	for i, w := range colWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}

	filename := fmt.Sprintf("codes_%s.xlsx", time.Now().Format("20060102_150405"))
	return f, filename, nil
}

// ExportCSV 导出编码表为 GBK 编码的 CSV，方便中文环境的 Excel 直接打开
func (s *AllocationService) ExportCSV(ctx context.Context, filter repository.ListFilter) ([]byte, string, error) {
	items, err := s.exportRows(ctx, filter)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	gbkWriter := transform.NewWriter(&buf, simplifiedchinese.GBK.NewEncoder())
	w := csv.NewWriter(gbkWriter)

	if err := w.Write(codeExportHeaders); err != nil {
		return nil, "", fmt.Errorf("写入CSV表头失败: %w", err)
	}
	for i := range items {
		item := &items[i]
		clsNum := ""
		if item.ClassificationNumber != nil {
			clsNum = fmt.Sprintf("%d", *item.ClassificationNumber)
		}
		record := []string{
			item.Model,
			item.ModelType,
			clsNum,
			item.ActualNumber,
			item.Extension,
			codeStatusLabel(item),
			item.OccupancyType,
			item.ProductName,
			item.Customer,
			item.Factory,
			item.CreatedBy,
			item.CreatedAt.Format("2006-01-02 15:04"),
		}
		if err := w.Write(record); err != nil {
			return nil, "", fmt.Errorf("写入CSV失败: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, "", fmt.Errorf("写入CSV失败: %w", err)
	}
	if err := gbkWriter.Close(); err != nil {
		return nil, "", fmt.Errorf("GBK编码失败: %w", err)
	}

	filename := fmt.Sprintf("codes_%s.csv", time.Now().Format("20060102_150405"))
	return buf.Bytes(), filename, nil
}
