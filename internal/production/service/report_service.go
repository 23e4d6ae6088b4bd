package service

import (
	"bytes"
	"context"
	"fmt"

	"github.com/bitfantasy/printops/internal/production/entity"
	"github.com/bitfantasy/printops/internal/production/repository"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReportService Excel 报表导出，配置了对象存储时同时归档
type ReportService struct {
	*base
	queue   *QueueService
	archive ReportArchive
}

// Report 导出结果
type Report struct {
	Filename    string
	ContentType string
	Data        []byte
	ArchivePath string
}

var queueHeaders = []string{"订单号", "买家", "生产状态", "优先级", "批次", "预计时长(分钟)", "实际时长(分钟)", "失败次数", "耗材用量", "开始时间", "完成时间", "备注"}

var usageHeaders = []string{"时间", "耗材ID", "订单ID", "用量", "说明"}

// ExportQueue 导出当前队列
func (s *ReportService) ExportQueue(ctx context.Context, f QueueFilter) (*Report, error) {
	orders, err := s.queue.List(ctx, f)
	if err != nil {
		return nil, err
	}

	x := excelize.NewFile()
	defer x.Close()
	sheet := "Queue"
	x.SetSheetName("Sheet1", sheet)
	writeHeader(x, sheet, queueHeaders)

	for i := range orders {
		o := &orders[i]
		row := i + 2
		values := []interface{}{
			o.MarketplaceOrderID,
			o.BuyerName,
			o.ProductionStatus,
			o.Priority,
			deref(o.PrintSessionID),
			intOrBlank(o.EstimatedPrintTime),
			intOrBlank(o.ActualPrintTime),
			o.PrintFailuresCount,
			o.TotalFilamentUsed.InexactFloat64(),
			timeOrBlank(o),
			completedOrBlank(o),
			deref(o.PrintNotes),
		}
		writeRow(x, sheet, row, values)
	}

	summary := Aggregate(orders)
	summaryRow := len(orders) + 3
	boldStyle, _ := x.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	x.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow), "汇总")
	x.SetCellValue(sheet, fmt.Sprintf("C%d", summaryRow), fmt.Sprintf("订单数: %d", summary.Total))
	x.SetCellValue(sheet, fmt.Sprintf("F%d", summaryRow), summary.TotalEstimatedTime)
	x.SetCellValue(sheet, fmt.Sprintf("G%d", summaryRow), fmt.Sprintf("未知时长: %d", summary.UnknownTimeCount))
	x.SetCellStyle(sheet, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("L%d", summaryRow), boldStyle)
	setWidths(x, sheet, []float64{18, 16, 12, 8, 38, 14, 14, 10, 12, 20, 20, 30})

	return s.finish(ctx, x, "queue")
}

// ExportUsage 导出耗材消耗流水
func (s *ReportService) ExportUsage(ctx context.Context, params repository.UsageListParams) (*Report, error) {
	usages, err := s.store.Filaments().ListUsage(ctx, params)
	if err != nil {
		return nil, err
	}

	x := excelize.NewFile()
	defer x.Close()
	sheet := "Usage"
	x.SetSheetName("Sheet1", sheet)
	writeHeader(x, sheet, usageHeaders)

	for i := range usages {
		u := &usages[i]
		writeRow(x, sheet, i+2, []interface{}{
			u.CreatedAt.Format("2006-01-02 15:04:05"),
			u.FilamentID,
			deref(u.OrderID),
			u.AmountUsed.InexactFloat64(),
			deref(u.Description),
		})
	}
	setWidths(x, sheet, []float64{20, 38, 38, 10, 40})

	return s.finish(ctx, x, "usage")
}

func (s *ReportService) finish(ctx context.Context, x *excelize.File, kind string) (*Report, error) {
	var buf bytes.Buffer
	if err := x.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	r := &Report{
		Filename:    fmt.Sprintf("%s_%s.xlsx", kind, s.now().Format("20060102_150405")),
		ContentType: xlsxContentType,
		Data:        buf.Bytes(),
	}
	if s.archive != nil {
		path, err := s.archive.Put(ctx, "reports/"+r.Filename, r.Data, r.ContentType)
		if err != nil {
			s.logger.Warn("archive report failed", zap.String("file", r.Filename), zap.Error(err))
		} else {
			r.ArchivePath = path
		}
	}
	return r, nil
}

func writeHeader(x *excelize.File, sheet string, headers []string) {
	boldStyle, _ := x.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	for i, h := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		x.SetCellValue(sheet, cell, h)
		x.SetCellStyle(sheet, cell, cell, boldStyle)
	}
}

func writeRow(x *excelize.File, sheet string, row int, values []interface{}) {
	for i, v := range values {
		col, _ := excelize.ColumnNumberToName(i + 1)
		x.SetCellValue(sheet, fmt.Sprintf("%s%d", col, row), v)
	}
}

func setWidths(x *excelize.File, sheet string, widths []float64) {
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		x.SetColWidth(sheet, col, col, w)
	}
}

func intOrBlank(v *int) interface{} {
	if v == nil {
		return ""
	}
	return *v
}

func timeOrBlank(o *entity.Order) string {
	if o.PrintStartedAt == nil {
		return ""
	}
	return o.PrintStartedAt.Format("2006-01-02 15:04")
}

func completedOrBlank(o *entity.Order) string {
	if o.PrintCompletedAt == nil {
		return ""
	}
	return o.PrintCompletedAt.Format("2006-01-02 15:04")
}
