package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/Lllllllleong/documentindexflow/internal/models"
)

const (
	wordMainPart     = "word/document.xml"
	wordEmbeddingDir = "word/embeddings/"
)

// xmlNode is a minimal element tree. Character data is stored as a child
// with an empty name.
type xmlNode struct {
	name     string
	text     string
	children []*xmlNode
}

func (n *xmlNode) child(name string) *xmlNode {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (n *xmlNode) innerText(sb *strings.Builder) {
	if n.name == "" {
		sb.WriteString(n.text)
		return
	}
	for _, c := range n.children {
		c.innerText(sb)
	}
}

// extractWordText reads the document body, then appends the text of embedded
// Word and spreadsheet packages.
func (e *Extractor) extractWordText(src Source, depth int) (string, error) {
	zr, err := zip.NewReader(src, src.Size())
	if err != nil {
		return "", fmt.Errorf("%w: word package is not in OpenXML format or is corrupted: %v", ErrUnreadableDocument, err)
	}

	root, err := readXMLPart(zr, wordMainPart)
	if err != nil {
		return "", fmt.Errorf("%w: word document is corrupt: %v", ErrUnreadableDocument, err)
	}

	body := root.child("body")
	if body == nil {
		return "", nil
	}

	var sb strings.Builder
	writePlainText(body, &sb)
	sb.WriteString(e.extractEmbeddedText(zr, depth))
	return sb.String(), nil
}

// writePlainText walks the element tree. Only text runs contribute; carriage
// returns, breaks and tabs add nothing, not even a separator.
func writePlainText(el *xmlNode, sb *strings.Builder) {
	for _, section := range el.children {
		switch section.name {
		case "":
			// character data outside a text run
		case "t":
			section.innerText(sb)
		case "cr", "br", "tab":
		case "p":
			writePlainText(section, sb)
		default:
			writePlainText(section, sb)
		}
	}
}

// extractEmbeddedText dispatches each embedded package to the matching
// extractor. A failing embedding is logged and skipped.
func (e *Extractor) extractEmbeddedText(zr *zip.Reader, depth int) string {
	var sb strings.Builder
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, wordEmbeddingDir) {
			continue
		}
		format := models.FormatFromName(f.Name)
		if format != models.FormatDocx && format != models.FormatXlsx {
			continue
		}
		if depth+1 > e.cfg.MaxEmbedDepth {
			e.logger.Warn("Skipping embedded document beyond maximum depth.", "embedding", path.Base(f.Name), "depth", depth+1)
			continue
		}

		data, err := readZipFile(f)
		if err != nil {
			e.logger.Warn("Word doc contained embedded documents, but text could not be extracted.", "embedding", path.Base(f.Name), "error", err)
			continue
		}
		text, err := e.extractText(NewSource(data), format, depth+1)
		if err != nil {
			e.logger.Warn("Word doc contained embedded documents, but text could not be extracted.", "embedding", path.Base(f.Name), "error", err)
			continue
		}
		sb.WriteString(text)
	}
	return sb.String()
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func readXMLPart(zr *zip.Reader, name string) (*xmlNode, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			return nil, err
		}
		return parseXMLTree(data)
	}
	return nil, fmt.Errorf("%s not found in package", name)
}

func parseXMLTree(data []byte) (*xmlNode, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	doc := &xmlNode{name: "#document"}
	stack := []*xmlNode{doc}

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse xml: %w", err)
		}
		parent := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			node := &xmlNode{name: t.Name.Local}
			parent.children = append(parent.children, node)
			stack = append(stack, node)
		case xml.EndElement:
			if len(stack) == 1 {
				return nil, fmt.Errorf("parse xml: unexpected end element %s", t.Name.Local)
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			parent.children = append(parent.children, &xmlNode{text: string(t)})
		}
	}

	for _, c := range doc.children {
		if c.name != "" {
			return c, nil
		}
	}
	return nil, fmt.Errorf("parse xml: no root element")
}
