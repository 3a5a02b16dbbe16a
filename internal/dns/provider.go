package dns

import "context"

// Provider is the record-level surface a zone backend exposes to callers
// that provision names, such as the HTTPRoute controller.
//
// Concurrent writes to the same (zone, name, type) are not serialized on the
// client side; the last write observed by the provider wins.
type Provider interface {
	GetZone(ctx context.Context, zone string) (*Zone, error)
	CreateRecord(ctx context.Context, zone, rrType, name string, contents []string, opts *RRSetOptions) error
	DeleteRecord(ctx context.Context, zone, rrType, name string) error
}
