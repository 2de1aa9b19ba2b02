package finance

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Mensalidades"

var exportHeaders = []string{
	"Aventureiro", "Classe", "Referência", "Vencimento", "Valor", "Desconto", "Valor final", "Situação",
}

// Export writes the filtered fees as an XLSX spreadsheet and returns the number of rows.
func (svc *service) Export(ctx context.Context, filter *QueryFilter, w io.Writer) (int, error) {
	fees, err := svc.Query(ctx, filter)
	if err != nil {
		return 0, err
	}
	f, err := buildSpreadsheet(fees)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return 0, errors.Wrap(err, "writing spreadsheet")
	}
	return len(fees), nil
}

func buildSpreadsheet(fees []Fee) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, errors.Wrap(err, "naming sheet")
	}

	for i, header := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheet, cell, header); err != nil {
			return nil, err
		}
	}

	for i, fee := range fees {
		row := []interface{}{
			fee.ChildName,
			fee.ClassGroup,
			fee.ReferenceMonth,
			fee.DueDate.Format("02/01/2006"),
			fee.Amount.InexactFloat64(),
			fee.DiscountAmount.InexactFloat64(),
			fee.FinalAmount.InexactFloat64(),
			StatusLabels[fee.EffectiveStatus],
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, errors.Wrapf(err, "writing row %d", i+2)
		}
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = f.SetRowStyle(exportSheet, 1, 1, style)
	}
	_ = f.SetColWidth(exportSheet, "A", "A", 32)
	return f, nil
}
