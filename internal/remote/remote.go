// Package remote fetches the OCI images that image modules publish from.
//
// Based on go-containerregistry patterns:
// - Authentication via keychain
// - Platform selection for multi-arch indexes
package remote

// Option configures a fetch.
type Option func(*options)

type options struct {
	auth     Authenticator
	platform string
	insecure bool
}

// WithAuth sets the credentials source. The default is the docker keychain.
func WithAuth(a Authenticator) Option {
	return func(o *options) { o.auth = a }
}

// WithPlatform selects an image from a multi-arch index, e.g. "linux/arm64".
func WithPlatform(platform string) Option {
	return func(o *options) { o.platform = platform }
}

// WithInsecure allows plain http registries.
func WithInsecure(insecure bool) Option {
	return func(o *options) { o.insecure = insecure }
}
