package extract

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDFText concatenates the text layer of pages 1..N in page order.
// No separator is added between pages beyond what the parser emits.
func (e *Extractor) extractPDFText(src Source) (string, error) {
	reader, err := pdf.NewReader(src, src.Size())
	if err != nil {
		return "", fmt.Errorf("%w: open pdf: %v", ErrUnreadableDocument, err)
	}

	var sb strings.Builder
	pageCount := reader.NumPage()
	for pageNr := 1; pageNr <= pageCount; pageNr++ {
		page := reader.Page(pageNr)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			e.logger.Warn("Skipping unreadable pdf page.", "page", pageNr, "pageCount", pageCount, "error", err)
			continue
		}
		sb.WriteString(pageText)
	}
	return sb.String(), nil
}
