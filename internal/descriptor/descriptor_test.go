package descriptor

import (
	"errors"
	"testing"
)

type fakeLinked map[string]bool

func (f fakeLinked) IsLinked(name string) bool { return f[name] }

func TestParseVariants(t *testing.T) {
	t.Parallel()

	linked := fakeLinked{"my-dev-build": true}

	tests := []struct {
		name string
		raw  string
		want Descriptor
	}{
		{"stable channel", "stable", Descriptor{Kind: Symbolic, Channel: "stable"}},
		{"beta channel", "beta", Descriptor{Kind: Symbolic, Channel: "beta"}},
		{"nightly channel", "nightly", Descriptor{Kind: Symbolic, Channel: "nightly"}},
		{"bare tag", "v4.9.0", Descriptor{Kind: Versioned, Tag: "v4.9.0"}},
		{"numeric tag gets v-prefixed", "4.9.0", Descriptor{Kind: Versioned, Tag: "v4.9.0"}},
		{"nightly-dated tag passes through", "nightly-2023-06-27", Descriptor{Kind: Versioned, Tag: "nightly-2023-06-27"}},
		{
			"origin-qualified tag",
			"leanprover/lean4:v4.9.0",
			Descriptor{Kind: Remote, Origin: "leanprover/lean4", Tag: "v4.9.0"},
		},
		{
			"origin-qualified channel",
			"leanprover/lean4:stable",
			Descriptor{Kind: Remote, Origin: "leanprover/lean4", Tag: "stable"},
		},
		{
			"remote file reference",
			"leanprover/lean4:lean-toolchain",
			Descriptor{Kind: RemoteFile, Origin: "leanprover/lean4", Path: "lean-toolchain"},
		},
		{
			"nested remote file reference",
			"leanprover/lean4:ci/lean-toolchain",
			Descriptor{Kind: RemoteFile, Origin: "leanprover/lean4", Path: "ci/lean-toolchain"},
		},
		{"linked name", "my-dev-build", Descriptor{Kind: Linked, Name: "my-dev-build"}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tc.raw, "leanprover/lean4", linked)
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tc.raw, err)
			}
			if got != tc.want {
				t.Fatalf("Parse(%q) = %+v, want %+v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestParseEmptyIsError(t *testing.T) {
	t.Parallel()

	_, err := Parse("   ", "leanprover/lean4", nil)
	if !errors.Is(err, ErrParse) {
		t.Fatalf("Parse(whitespace) error = %v, want wrapping ErrParse", err)
	}
}

func TestParseNilLinkedNeverMatchesLinked(t *testing.T) {
	t.Parallel()

	got, err := Parse("my-dev-build", "leanprover/lean4", nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Kind == Linked {
		t.Fatalf("Parse with nil LinkedNames produced a Linked descriptor: %+v", got)
	}
}

func TestDescriptorStringRoundTrips(t *testing.T) {
	t.Parallel()

	linked := fakeLinked{"my-dev-build": true}
	inputs := []string{"stable", "beta", "nightly", "v4.9.0", "leanprover/lean4:v4.9.0", "my-dev-build"}

	for _, raw := range inputs {
		raw := raw
		t.Run(raw, func(t *testing.T) {
			t.Parallel()
			d, err := Parse(raw, "leanprover/lean4", linked)
			if err != nil {
				t.Fatalf("Parse(%q): %v", raw, err)
			}
			reparsed, err := Parse(d.String(), "leanprover/lean4", linked)
			if err != nil {
				t.Fatalf("Parse(%q) [round-trip]: %v", d.String(), err)
			}
			id1, err := d.Identity("leanprover/lean4")
			if err != nil {
				t.Fatalf("Identity: %v", err)
			}
			id2, err := reparsed.Identity("leanprover/lean4")
			if err != nil {
				t.Fatalf("Identity [round-trip]: %v", err)
			}
			if id1 != id2 {
				t.Fatalf("identity(parse(show(d))) = %q, want %q", id2, id1)
			}
		})
	}
}

func TestIdentity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		d    Descriptor
		want string
	}{
		{"symbolic", Descriptor{Kind: Symbolic, Channel: "stable"}, "stable"},
		{"versioned", Descriptor{Kind: Versioned, Tag: "v4.9.0"}, "v4.9.0"},
		{"remote default origin", Descriptor{Kind: Remote, Origin: "leanprover/lean4", Tag: "v4.9.0"}, "v4.9.0"},
		{
			"remote non-default origin",
			Descriptor{Kind: Remote, Origin: "myorg/lean4-fork", Tag: "v1.0.0"},
			"myorg-lean4-fork-v1.0.0",
		},
		{"linked", Descriptor{Kind: Linked, Name: "my-dev-build"}, "my-dev-build"},
		{
			"remote nightly tag redirects the default origin to its -nightly companion",
			Descriptor{Kind: Remote, Origin: "leanprover/lean4", Tag: "nightly-2023-06-27"},
			"leanprover-lean4-nightly-nightly-2023-06-27",
		},
		{
			"remote nightly tag against an already-nightly origin is unchanged",
			Descriptor{Kind: Remote, Origin: "leanprover/lean4-nightly", Tag: "nightly-2023-06-27"},
			"leanprover-lean4-nightly-nightly-2023-06-27",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := tc.d.Identity("leanprover/lean4")
			if err != nil {
				t.Fatalf("Identity: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Identity() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestIdentityRemoteFileIsUnresolvable(t *testing.T) {
	t.Parallel()

	d := Descriptor{Kind: RemoteFile, Origin: "leanprover/lean4", Path: "lean-toolchain"}
	_, err := d.Identity("leanprover/lean4")
	if !errors.Is(err, ErrParse) {
		t.Fatalf("Identity on a RemoteFile descriptor error = %v, want wrapping ErrParse", err)
	}
}

func TestRedirectNightlyOrigin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		origin string
		tag    string
		want   string
	}{
		{"non-nightly tag is unaffected", "leanprover/lean4", "v4.9.0", "leanprover/lean4"},
		{"nightly tag redirects", "leanprover/lean4", "nightly-2023-06-27", "leanprover/lean4-nightly"},
		{"nightly tag against already-nightly origin is unchanged", "leanprover/lean4-nightly", "nightly-2023-06-27", "leanprover/lean4-nightly"},
		{"bare nightly channel name redirects too", "leanprover/lean4", "nightly", "leanprover/lean4-nightly"},
	}
	for _, tc := range tests {
		if got := RedirectNightlyOrigin(tc.origin, tc.tag); got != tc.want {
			t.Errorf("RedirectNightlyOrigin(%q, %q) = %q, want %q", tc.origin, tc.tag, got, tc.want)
		}
	}
}

func TestIsDefaultMajorOrigin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want bool
	}{
		{"stable", true},
		{"4.9.0", true},
		{"3.51.1", false},
		{"lean3-stable", false},
	}
	for _, tc := range tests {
		if got := IsDefaultMajorOrigin(tc.name); got != tc.want {
			t.Errorf("IsDefaultMajorOrigin(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
