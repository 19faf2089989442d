package mirror

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"
)

// Algorithm selects the digest used to fingerprint file contents
type Algorithm string

const (
	AlgoBLAKE3 Algorithm = "blake3"
	AlgoMD5    Algorithm = "md5"

	DefaultAlgorithm = AlgoBLAKE3
)

// ParseAlgorithm validates an algorithm name. An empty name selects the default.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(name))) {
	case "":
		return DefaultAlgorithm, nil
	case AlgoBLAKE3:
		return AlgoBLAKE3, nil
	case AlgoMD5:
		return AlgoMD5, nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm %q", name)
	}
}

// Fingerprint is a fixed-size digest of a file's content.
type Fingerprint []byte

func (f Fingerprint) Equal(other Fingerprint) bool {
	return bytes.Equal(f, other)
}

func (f Fingerprint) String() string {
	return hex.EncodeToString(f)
}

// Hasher computes content fingerprints.
type Hasher interface {
	Fingerprint(path string) (Fingerprint, error)
}

type fileHasher struct {
	fs      afero.Fs
	newHash func() hash.Hash
}

// NewHasher returns a Hasher reading files from fs with the given algorithm.
func NewHasher(fs afero.Fs, algo Algorithm) (Hasher, error) {
	h := &fileHasher{fs: fs}
	switch algo {
	case AlgoBLAKE3, "":
		h.newHash = func() hash.Hash { return blake3.New() }
	case AlgoMD5:
		h.newHash = md5.New
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algo)
	}
	return h, nil
}

// Fingerprint streams the file at path through the digest.
func (h *fileHasher) Fingerprint(path string) (Fingerprint, error) {
	file, err := h.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer file.Close()

	digest := h.newHash()
	if _, err := io.Copy(digest, file); err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return digest.Sum(nil), nil
}
