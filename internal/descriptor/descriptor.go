// Package descriptor parses and represents toolchain descriptors: the
// five-way tagged sum described in spec.md §3 (Symbolic, Versioned,
// Remote, RemoteFile, Linked), plus the textual grammar from spec.md §4.2
// and the resolved-identity rule also from §3.
//
// Grounded on original_source/src/elan/toolchain.rs's lookup_toolchain_desc
// (origin inference, "nightly" channel quirk, numeric-tag normalization)
// generalized to the five-variant model spec.md actually specifies (the
// original source predates the Remote/RemoteFile/Linked split).
package descriptor

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind identifies which of the five descriptor variants a Descriptor holds.
type Kind int

const (
	// Symbolic is a named channel: stable, beta, or nightly.
	Symbolic Kind = iota
	// Versioned is an explicit release tag against the default origin.
	Versioned
	// Remote is an origin-qualified channel or tag: "origin:tag".
	Remote
	// RemoteFile follows a file at HEAD in a repository and re-parses its
	// contents as a descriptor: "origin:path/to/lean-toolchain".
	RemoteFile
	// Linked is a user-defined alias pointing at an arbitrary local
	// directory, registered via `elan toolchain link`.
	Linked
)

func (k Kind) String() string {
	switch k {
	case Symbolic:
		return "symbolic"
	case Versioned:
		return "versioned"
	case Remote:
		return "remote"
	case RemoteFile:
		return "remote-file"
	case Linked:
		return "linked"
	default:
		return "unknown"
	}
}

// Descriptor is a parsed toolchain descriptor. Exactly one of its fields is
// meaningful per Kind; see the Kind constants for which.
type Descriptor struct {
	Kind Kind

	// Channel holds the channel name for Symbolic ("stable", "beta",
	// "nightly").
	Channel string

	// Tag holds the release tag for Versioned and Remote.
	Tag string

	// Origin holds the upstream repository identifier for Remote and
	// RemoteFile, e.g. "leanprover/lean4".
	Origin string

	// Path holds the in-repo file path for RemoteFile, e.g.
	// "lean-toolchain".
	Path string

	// Name holds the linked alias name for Linked.
	Name string
}

var symbolicChannels = map[string]bool{"stable": true, "beta": true, "nightly": true}

// ErrParse is the sentinel wrapped by parse failures; surfacing them is
// informational per spec.md §4.2 — callers decide whether to abort.
var ErrParse = errors.New("malformed toolchain descriptor")

// LinkedNames is implemented by whatever holds the registry of linked
// toolchain aliases, so Parse can recognize them. Parse checks for a
// linked name after the "origin:tag" form and before the channel names
// and the bare-tag fallback.
type LinkedNames interface {
	IsLinked(name string) bool
}

var originTagPattern = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9_.-]*/[A-Za-z0-9][A-Za-z0-9_.-]*):(.+)$`)

// Parse parses raw text into a Descriptor. defaultOrigin is the
// configured fallback origin (see the Open Question note in DESIGN.md:
// this is always an explicit setting, never guessed from the descriptor
// shape). linked may be nil, in which case no name is ever recognized as
// Linked.
func Parse(raw string, defaultOrigin string, linked LinkedNames) (Descriptor, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Descriptor{}, fmt.Errorf("%w: empty descriptor", ErrParse)
	}

	if m := originTagPattern.FindStringSubmatch(text); m != nil {
		origin, tail := m[1], m[2]
		if strings.HasSuffix(tail, "lean-toolchain") {
			return Descriptor{Kind: RemoteFile, Origin: origin, Path: tail}, nil
		}
		return Descriptor{Kind: Remote, Origin: origin, Tag: normalizeTag(tail)}, nil
	}

	if linked != nil && linked.IsLinked(text) {
		return Descriptor{Kind: Linked, Name: text}, nil
	}

	if symbolicChannels[text] {
		return Descriptor{Kind: Symbolic, Channel: text}, nil
	}

	// Anything else is a bare versioned tag against the default origin.
	// defaultOrigin is carried on the descriptor implicitly: callers that
	// need the origin for resolution consult settings, matching the
	// "exactly the tag" identity rule in spec.md §3.
	_ = defaultOrigin
	return Descriptor{Kind: Versioned, Tag: normalizeTag(text)}, nil
}

// normalizeTag mirrors the original implementation's quirk of prefixing a
// bare numeric release ("4.9.0") with "v" so it matches upstream release
// tag conventions. Non-numeric tags (including "nightly-2023-06-27") pass
// through unchanged.
func normalizeTag(tag string) string {
	if tag == "" {
		return tag
	}
	if tag[0] >= '0' && tag[0] <= '9' {
		return "v" + tag
	}
	return tag
}

// String renders the descriptor back to its textual form, such that
// Parse(d.String(), ...) round-trips to an equal Descriptor. Required by
// the invariant in spec.md §8: identity(parse(show(d))) == identity(d).
func (d Descriptor) String() string {
	switch d.Kind {
	case Symbolic:
		return d.Channel
	case Versioned:
		return d.Tag
	case Remote:
		return d.Origin + ":" + d.Tag
	case RemoteFile:
		return d.Origin + ":" + d.Path
	case Linked:
		return d.Name
	default:
		return ""
	}
}

// Identity computes the canonical, filesystem-safe store directory name
// for this descriptor, given the configured default origin. Per spec.md
// §3: for the default origin, identity is exactly the tag/channel/name;
// for a non-default origin, identity is
// "<origin-with-slashes-replaced-by-dashes>-<tag>".
func (d Descriptor) Identity(defaultOrigin string) (string, error) {
	switch d.Kind {
	case Symbolic:
		return d.Channel, nil
	case Versioned:
		return d.Tag, nil
	case Remote:
		origin := RedirectNightlyOrigin(d.Origin, d.Tag)
		if origin == defaultOrigin {
			return d.Tag, nil
		}
		return slugOrigin(origin) + "-" + d.Tag, nil
	case Linked:
		return d.Name, nil
	case RemoteFile:
		return "", fmt.Errorf("%w: a remote-file descriptor has no identity until followed and re-parsed", ErrParse)
	default:
		return "", fmt.Errorf("%w: unknown descriptor kind", ErrParse)
	}
}

func slugOrigin(origin string) string {
	return strings.ReplaceAll(origin, "/", "-")
}

// RedirectNightlyOrigin applies the "-nightly" origin-redirect quirk: a
// release name beginning with "nightly" against any origin, the default
// one included, implicitly targets that origin's "-nightly" companion
// repo, unless the origin already ends in "-nightly". Grounded on
// original_source/src/elan/toolchain.rs:56-58's lookup_toolchain_desc.
// Callers must apply this to the origin before any release lookup or
// identity computation for a Remote descriptor.
func RedirectNightlyOrigin(origin, tag string) string {
	if strings.HasPrefix(tag, "nightly") && !strings.HasSuffix(origin, "-nightly") {
		return origin + "-nightly"
	}
	return origin
}

// IsDefaultMajorOrigin reports whether name looks like a Lean 4 descriptor
// (used only to pick which of two legacy community origins a *future*
// default-origin setting should start from; it never drives runtime
// descriptor resolution — see the Open Question decision in DESIGN.md).
func IsDefaultMajorOrigin(name string) bool {
	return !strings.HasPrefix(name, "3.") && !strings.Contains(name, "lean3")
}
