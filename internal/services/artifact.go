package services

import (
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ErrNothingExtracted signals that no usable text came out of a document.
var ErrNothingExtracted = errors.New("text could not be extracted from document, can't create empty document")

// AssembleArtifact turns the accumulated text into the UTF-8 artifact that is
// published for indexing. Invalid byte sequences are replaced and the text
// is NFC-normalised so identical input always yields identical bytes.
func AssembleArtifact(text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrNothingExtracted
	}
	return []byte(norm.NFC.String(strings.ToValidUTF8(text, "\uFFFD"))), nil
}
