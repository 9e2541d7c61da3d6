package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractSheetText emits every cell of every sheet in workbook order, each
// followed by a single space. excelize resolves shared-string cells through
// the shared-string table; other cells keep their raw value.
func (e *Extractor) extractSheetText(src Source) (string, error) {
	f, err := excelize.OpenReader(io.NewSectionReader(src, 0, src.Size()), excelize.Options{RawCellValue: true})
	if err != nil {
		return "", fmt.Errorf("%w: spreadsheet is not in OpenXML format or is corrupted: %v", ErrUnreadableDocument, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			e.logger.Warn("Failed to close workbook.", "error", err)
		}
	}()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return "", fmt.Errorf("%w: read sheet %q: %v", ErrUnreadableDocument, sheet, err)
		}
		for _, row := range rows {
			for _, cell := range row {
				// GetRows pads gaps between cells with empty strings.
				if cell == "" {
					continue
				}
				sb.WriteString(cell)
				sb.WriteByte(' ')
			}
		}
	}
	return sb.String(), nil
}
