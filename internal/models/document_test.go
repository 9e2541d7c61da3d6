package models

import (
	"errors"
	"testing"
)

func TestFormatFromName(t *testing.T) {
	tests := map[string]Format{
		"a.pdf":           FormatPDF,
		"A.PDF":           FormatPDF,
		"dir/report.docx": FormatDocx,
		"sheet.XLSX":      FormatXlsx,
		"photo.png":       FormatOther,
		"legacy.doc":      FormatOther,
		"noext":           FormatOther,
	}
	for name, want := range tests {
		if got := FormatFromName(name); got != want {
			t.Errorf("FormatFromName(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestParseBlobRef(t *testing.T) {
	tests := []struct {
		in      string
		want    BlobRef
		wantErr bool
	}{
		{in: "gs://src/a/b.pdf", want: BlobRef{Bucket: "src", Name: "a/b.pdf"}},
		{in: "b.pdf", want: BlobRef{Bucket: "default", Name: "b.pdf"}},
		{in: "/b.pdf", want: BlobRef{Bucket: "default", Name: "b.pdf"}},
		{in: "gs://src", wantErr: true},
		{in: "gs:///b.pdf", wantErr: true},
		{in: "  ", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseBlobRef(tc.in, "default")
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseBlobRef(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseBlobRef(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}

	if _, err := ParseBlobRef("b.pdf", ""); err == nil {
		t.Error("bare name without default bucket was accepted")
	}
}

func TestNewBlobInfo(t *testing.T) {
	const id = "3f2a9c1e-7b4d-4e8a-9c21-5d6e7f8a9b0c"
	info, err := NewBlobInfo(BlobRef{Bucket: "b", Name: "uploads/" + id + ".pdf"})
	if err != nil {
		t.Fatalf("NewBlobInfo: %v", err)
	}
	if info.EntityID.String() != id {
		t.Errorf("EntityID = %s, want %s", info.EntityID, id)
	}
	if info.Ref.BaseName() != id {
		t.Errorf("BaseName = %s", info.Ref.BaseName())
	}

	_, err = NewBlobInfo(BlobRef{Bucket: "b", Name: "not-a-guid.pdf"})
	if !errors.Is(err, ErrInvalidEntityID) {
		t.Errorf("err = %v, want ErrInvalidEntityID", err)
	}
}

func TestProcessDocumentRequestURIs(t *testing.T) {
	req := ProcessDocumentRequest{BlobURI: "a", BlobURIs: []string{"b", "c"}}
	got := req.URIs()
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("URIs = %v", got)
	}
	if n := len(ProcessDocumentRequest{}.URIs()); n != 0 {
		t.Errorf("empty request URIs = %d", n)
	}
}
