package customer

import (
	"encoding/base64"
	"errors"
)

// ErrEmptyDocument is returned when a document has no content.
var ErrEmptyDocument = errors.New("document is empty")

// Document is an identity document attached to the signup form. Data holds the
// file content as standard base64 so the whole form stays JSON text.
type Document struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        string `json:"data"`
}

// EncodeDocument wraps raw file bytes into a text-safe Document.
func EncodeDocument(name, contentType string, raw []byte) *Document {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Document{
		Name:        name,
		ContentType: contentType,
		Data:        base64.StdEncoding.EncodeToString(raw),
	}
}

// Decode returns the raw document bytes.
func (d *Document) Decode() ([]byte, error) {
	if d == nil || d.Data == "" {
		return nil, ErrEmptyDocument
	}
	return base64.StdEncoding.DecodeString(d.Data)
}
