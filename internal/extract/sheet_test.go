package extract

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Lllllllleong/documentindexflow/internal/models"
	"github.com/xuri/excelize/v2"
)

func TestSheetText_CellsInOrder(t *testing.T) {
	data := buildWorkbook(t, map[string]any{
		"A1": "Name", "B1": "Qty",
		"A2": "Apple", "B2": 3,
		"A3": "gap", "C3": 4.5,
	})

	e := newTestExtractor(&bytes.Buffer{})
	got, err := e.ExtractText(NewSource(data), models.FormatXlsx)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := "Name Qty Apple 3 gap 4.5 "
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSheetText_AllSheets(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	if _, err := f.NewSheet("Second"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellValue("Sheet1", "A1", "first"); err != nil {
		t.Fatal(err)
	}
	if err := f.SetCellValue("Second", "A1", "second"); err != nil {
		t.Fatal(err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	e := newTestExtractor(&bytes.Buffer{})
	got, err := e.ExtractText(NewSource(buf.Bytes()), models.FormatXlsx)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got != "first second " {
		t.Errorf("got %q, want %q", got, "first second ")
	}
}

func TestSheetText_Corrupt(t *testing.T) {
	e := newTestExtractor(&bytes.Buffer{})
	_, err := e.ExtractText(NewSource([]byte("definitely not a workbook")), models.FormatXlsx)
	if !errors.Is(err, ErrUnreadableDocument) {
		t.Fatalf("got %v, want ErrUnreadableDocument", err)
	}
}

func TestExtractText_UnsupportedFormat(t *testing.T) {
	e := newTestExtractor(&bytes.Buffer{})
	_, err := e.ExtractText(NewSource([]byte("x")), models.FormatOther)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("got %v, want ErrUnsupportedFormat", err)
	}
}
