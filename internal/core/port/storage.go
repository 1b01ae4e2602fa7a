package port

import "context"

// ExportStorage persists data export bundles and returns a download location.
type ExportStorage interface {
	StoreExport(ctx context.Context, userID string, payload []byte) (location string, err error)
}
