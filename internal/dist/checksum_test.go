package dist

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	hashA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	hashB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func TestParseChecksums(t *testing.T) {
	t.Parallel()

	input := hashA + "  lean-v4.9.0-x86_64-linux.tar.gz\n" +
		"\n" +
		"not a valid line\n" +
		"deadbeef  too-short-hash\n" +
		hashB + "  lean-v4.9.0-aarch64-darwin.tar.gz\n"

	entries, err := ParseChecksums(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseChecksums: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2 (malformed lines skipped): %+v", len(entries), entries)
	}
	if entries[0].Filename != "lean-v4.9.0-x86_64-linux.tar.gz" || entries[0].Hash != hashA {
		t.Fatalf("entries[0] = %+v", entries[0])
	}
	if entries[1].Filename != "lean-v4.9.0-aarch64-darwin.tar.gz" || entries[1].Hash != hashB {
		t.Fatalf("entries[1] = %+v", entries[1])
	}
}

func TestParseChecksumsLowercasesHash(t *testing.T) {
	t.Parallel()

	upper := strings.ToUpper(hashA)
	entries, err := ParseChecksums(strings.NewReader(upper + "  asset.tar.gz\n"))
	if err != nil {
		t.Fatalf("ParseChecksums: %v", err)
	}
	if entries[0].Hash != hashA {
		t.Fatalf("Hash = %q, want lowercased %q", entries[0].Hash, hashA)
	}
}

func TestParseChecksumsNoValidEntries(t *testing.T) {
	t.Parallel()

	_, err := ParseChecksums(strings.NewReader("garbage\nmore garbage\n"))
	if err == nil {
		t.Fatal("ParseChecksums with no valid lines succeeded, want an error")
	}
}

func TestFindChecksum(t *testing.T) {
	t.Parallel()

	entries := []ChecksumEntry{{Hash: hashA, Filename: "a.tar.gz"}, {Hash: hashB, Filename: "b.tar.gz"}}

	got, err := FindChecksum(entries, "b.tar.gz")
	if err != nil {
		t.Fatalf("FindChecksum: %v", err)
	}
	if got != hashB {
		t.Fatalf("FindChecksum = %q, want %q", got, hashB)
	}

	_, err = FindChecksum(entries, "missing.tar.gz")
	if !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("FindChecksum(missing) error = %v, want ErrAssetNotFound", err)
	}
}

func TestVerifyFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, []byte("hello elan"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	hash, err := ComputeFileHash(path)
	if err != nil {
		t.Fatalf("ComputeFileHash: %v", err)
	}

	if err := VerifyFile(path, hash); err != nil {
		t.Fatalf("VerifyFile with the correct hash failed: %v", err)
	}
	if err := VerifyFile(path, strings.ToUpper(hash)); err != nil {
		t.Fatalf("VerifyFile should be case-insensitive: %v", err)
	}

	err = VerifyFile(path, hashA)
	var checksumErr *ChecksumError
	if !errors.As(err, &checksumErr) {
		t.Fatalf("VerifyFile with a wrong hash error = %v, want *ChecksumError", err)
	}
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("errors.Is(err, ErrChecksumMismatch) = false, want true")
	}
}
