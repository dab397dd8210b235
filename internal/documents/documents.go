package documents

import (
	"context"
	"path"
	"strings"

	"github.com/google/uuid"
)

// Store persists identity documents under an opaque key.
type Store interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
}

// KeyFor builds a unique object key for a document belonging to identityID.
func KeyFor(identityID, name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "document"
	}
	return path.Join("identity-documents", identityID, uuid.NewString()+"-"+base)
}
