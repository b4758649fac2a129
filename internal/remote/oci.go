package remote

import (
	"context"
	"fmt"

	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

// Image fetches the image behind a standard Docker ref (e.g., "ghcr.io/org/site:v1").
// Layers are fetched lazily when read.
func Image(ctx context.Context, imageRef string, opts ...Option) (v1.Image, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	nameOpts := []name.Option{name.WithDefaultTag("latest")}
	if o.insecure {
		nameOpts = append(nameOpts, name.Insecure)
	}
	ref, err := name.ParseReference(imageRef, nameOpts...)
	if err != nil {
		return nil, fmt.Errorf("invalid image ref %q: %w", imageRef, err)
	}

	remoteOpts := []remote.Option{
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(newKeychain(o.auth)),
	}
	if o.platform != "" {
		p, err := v1.ParsePlatform(o.platform)
		if err != nil {
			return nil, fmt.Errorf("invalid platform %q: %w", o.platform, err)
		}
		remoteOpts = append(remoteOpts, remote.WithPlatform(*p))
	}

	img, err := remote.Image(ref, remoteOpts...)
	if err != nil {
		return nil, fmt.Errorf("fetch image %s: %w", ref, err)
	}
	return img, nil
}
