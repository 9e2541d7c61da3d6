package extract

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"strings"
	"testing"

	"github.com/Lllllllleong/documentindexflow/internal/models"
)

// buildTextPDF creates a single-page PDF with correct xref offsets.
func buildTextPDF(text string) []byte {
	escaped := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`).Replace(text)
	stream := "BT\n/F1 12 Tf\n72 720 Td\n(" + escaped + ") Tj\nET"

	return buildPDF([]string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	})
}

// buildImagePDF creates a single-page PDF drawing one Flate-compressed
// DeviceGray image per size. The images are objects 5, 6, ... in order.
func buildImagePDF(t *testing.T, sizes ...int) []byte {
	t.Helper()
	var names, content strings.Builder
	var images []string
	for i, size := range sizes {
		fmt.Fprintf(&names, "/Im%d %d 0 R ", i+1, i+5)
		fmt.Fprintf(&content, "q %d 0 0 %d %d 0 cm /Im%d Do Q\n", size, size, i*100, i+1)

		var z bytes.Buffer
		zw := zlib.NewWriter(&z)
		if _, err := zw.Write(bytes.Repeat([]byte{0x80}, size*size)); err != nil {
			t.Fatal(err)
		}
		if err := zw.Close(); err != nil {
			t.Fatal(err)
		}
		images = append(images, fmt.Sprintf("<< /Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceGray /BitsPerComponent 8 /Filter /FlateDecode /Length %d >>\nstream\n%s\nendstream",
			size, size, z.Len(), z.String()))
	}

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /XObject << " + names.String() + ">> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", content.Len(), content.String()),
	}
	return buildPDF(append(objects, images...))
}

// buildPDF numbers objects from 1 and writes a matching xref table.
func buildPDF(objects []string) []byte {
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects)+1)
	for i, obj := range objects {
		offsets[i+1] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", len(objects)+1)
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(objects); i++ {
		fmt.Fprintf(&b, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return []byte(b.String())
}

// panickingSource fails the way a damaged object stream can inside the
// PDF parsers.
type panickingSource struct{ size int64 }

func (s panickingSource) ReadAt([]byte, int64) (int, error) {
	panic("runtime error: slice bounds out of range [-1:]")
}

func (s panickingSource) Size() int64 { return s.size }

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.SetGray(x, h/2, color.Gray{Y: 200})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPDFText_Simple(t *testing.T) {
	e := newTestExtractor(&bytes.Buffer{})
	got, err := e.ExtractText(NewSource(buildTextPDF("Hello World")), models.FormatPDF)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(got, "Hello") {
		t.Errorf("expected page text, got %q", got)
	}
}

func TestPDFText_Malformed(t *testing.T) {
	e := newTestExtractor(&bytes.Buffer{})
	_, err := e.ExtractText(NewSource([]byte("%PDF-1.4 truncated garbage")), models.FormatPDF)
	if !errors.Is(err, ErrUnreadableDocument) {
		t.Fatalf("got %v, want ErrUnreadableDocument", err)
	}
}

func TestExtractImages_Malformed(t *testing.T) {
	e := newTestExtractor(&bytes.Buffer{})
	_, err := e.ExtractImages(NewSource([]byte("not a pdf at all")))
	if !errors.Is(err, ErrUnreadableDocument) {
		t.Fatalf("got %v, want ErrUnreadableDocument", err)
	}
}

func TestExtractImages_TextOnly(t *testing.T) {
	e := newTestExtractor(&bytes.Buffer{})
	images, err := e.ExtractImages(NewSource(buildTextPDF("no pictures here")))
	if err != nil {
		t.Fatalf("extract images: %v", err)
	}
	if len(images) != 0 {
		t.Errorf("got %d images, want 0", len(images))
	}
}

func TestExtractImages_SizeThreshold(t *testing.T) {
	e := newTestExtractor(&bytes.Buffer{})
	images, err := e.ExtractImages(NewSource(buildImagePDF(t, 49, 50)))
	if err != nil {
		t.Fatalf("extract images: %v", err)
	}
	if len(images) != 1 {
		t.Fatalf("got %d images, want only the 50x50 one", len(images))
	}
	img := images[0]
	if img.Index != 1 || img.ObjectNumber != 6 {
		t.Errorf("index=%d objNr=%d, want 1 and 6", img.Index, img.ObjectNumber)
	}
	if img.Width != 50 || img.Height != 50 || img.Format != "png" {
		t.Errorf("got %dx%d %s, want 50x50 png", img.Width, img.Height, img.Format)
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(img.Data)); err != nil || cfg.Width != 50 {
		t.Errorf("image data does not decode to 50px: %v", err)
	}
}

func TestExtractImages_ObjectOrder(t *testing.T) {
	e := New(Config{MinImageDimension: 40, Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))})
	images, err := e.ExtractImages(NewSource(buildImagePDF(t, 60, 45, 70)))
	if err != nil {
		t.Fatalf("extract images: %v", err)
	}
	want := []struct{ index, objNr, size int }{{1, 5, 60}, {2, 6, 45}, {3, 7, 70}}
	if len(images) != len(want) {
		t.Fatalf("got %d images, want %d", len(images), len(want))
	}
	for i, w := range want {
		if images[i].Index != w.index || images[i].ObjectNumber != w.objNr || images[i].Width != w.size {
			t.Errorf("image %d = index %d objNr %d width %d, want %+v", i, images[i].Index, images[i].ObjectNumber, images[i].Width, w)
		}
	}
}

func TestExtractImages_ReaderPanicIsUnreadable(t *testing.T) {
	e := newTestExtractor(&bytes.Buffer{})
	images, err := e.ExtractImages(panickingSource{size: 1024})
	if !errors.Is(err, ErrUnreadableDocument) {
		t.Fatalf("got %v, want ErrUnreadableDocument", err)
	}
	if images != nil {
		t.Errorf("got %d images from a failed read", len(images))
	}
}

func TestRetainImage_Threshold(t *testing.T) {
	tests := []struct {
		name string
		w, h int
		keep bool
	}{
		{"below threshold", 49, 49, false},
		{"narrow", 49, 120, false},
		{"short", 120, 49, false},
		{"exactly threshold", 50, 50, true},
		{"large", 640, 480, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, keep, err := retainImage(encodePNG(t, tt.w, tt.h), defaultMinImageDimension)
			if err != nil {
				t.Fatalf("retain: %v", err)
			}
			if keep != tt.keep {
				t.Fatalf("keep = %v, want %v", keep, tt.keep)
			}
			if keep && (img.Width != tt.w || img.Height != tt.h || img.Format != "png") {
				t.Errorf("got %dx%d %s, want %dx%d png", img.Width, img.Height, img.Format, tt.w, tt.h)
			}
		})
	}
}

func TestRetainImage_Undecodable(t *testing.T) {
	if _, _, err := retainImage([]byte("not an image"), defaultMinImageDimension); err == nil {
		t.Fatal("expected decode error")
	}
}
