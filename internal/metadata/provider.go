package metadata

import "context"

// Provider is the capability both metadata backends implement (spec
// §4.2: "Both variants share the same interface"). Selection between
// them is a configuration decision at startup, not a runtime branch.
type Provider interface {
	Read(ctx context.Context, id string) (HoxMetadata, error)
	Write(ctx context.Context, id string, meta HoxMetadata) error
}
