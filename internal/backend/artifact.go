package backend

import (
	"fmt"

	"github.com/opencontainers/go-digest"
)

// ArtifactKind classifies an item's payload and decides whether the build
// stage runs for it.
type ArtifactKind string

const (
	// KindSource is a source payload that must be built before install.
	KindSource ArtifactKind = "source"
	// KindBinary is a prebuilt payload that installs as fetched.
	KindBinary ArtifactKind = "binary"
)

// NeedsBuild reports whether items of this kind pass through the build
// stage. Unknown kinds are treated as source so nothing skips a build by
// accident.
func (k ArtifactKind) NeedsBuild() bool {
	return k != KindBinary
}

// Valid reports whether k is a known kind.
func (k ArtifactKind) Valid() bool {
	switch k {
	case KindSource, KindBinary:
		return true
	default:
		return false
	}
}

// ParseArtifactKind converts a manifest string into an ArtifactKind.
// The empty string defaults to source.
func ParseArtifactKind(s string) (ArtifactKind, error) {
	switch ArtifactKind(s) {
	case KindSource, KindBinary:
		return ArtifactKind(s), nil
	case "":
		return KindSource, nil
	default:
		return "", fmt.Errorf("unknown artifact kind %q", s)
	}
}

// Artifact is a staged payload on local disk, produced by Fetch or Build
// and consumed by the next stage. The digest covers the file at Path and
// lets later stages verify the payload was not altered in between.
type Artifact struct {
	// Key is the owning item's key (name@version).
	Key string

	// Kind mirrors the owning item's kind at the time of staging.
	Kind ArtifactKind

	// Path is the absolute location of the staged payload.
	Path string

	// Digest is the content digest of the file at Path.
	Digest digest.Digest

	// Size is the payload size in bytes.
	Size int64
}

// String renders the artifact for logs.
func (a *Artifact) String() string {
	if a == nil {
		return "<nil artifact>"
	}
	return fmt.Sprintf("%s (%s, %d bytes, %s)", a.Key, a.Kind, a.Size, a.Digest)
}
