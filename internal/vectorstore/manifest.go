package vectorstore

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	FormatVersion = 1
	ManifestFile  = "manifest.yaml"
)

// Manifest describes a persisted index. It is written after the payload, so
// a directory without one holds no usable index.
type Manifest struct {
	FormatVersion int       `yaml:"format_version"`
	Backend       string    `yaml:"backend"`
	Embedder      string    `yaml:"embedder"`
	Dimension     int       `yaml:"dimension"`
	ChunkCount    int       `yaml:"chunk_count"`
	Checksum      string    `yaml:"checksum"`
	Signature     string    `yaml:"signature,omitempty"`
	CreatedAt     time.Time `yaml:"created_at"`
	Summary       string    `yaml:"summary,omitempty"`
	EmbedderState string    `yaml:"embedder_state,omitempty"`
}

func (m Manifest) state() ([]byte, error) {
	if m.EmbedderState == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(m.EmbedderState)
}

// ReadManifest loads dir/manifest.yaml.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return m, fmt.Errorf("%s: %w", dir, ErrIndexNotFound)
		}
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: manifest: %v", ErrDeserialization, err)
	}
	return m, nil
}

func writeManifest(dir string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, ManifestFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, ManifestFile))
}

// payloadDigest hashes every regular file under root (a file or a directory)
// together with its slash-separated relative path, in lexical order.
func payloadDigest(root string) ([]byte, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	h := sha256.New()
	for _, f := range files {
		rel, err := filepath.Rel(root, f)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(h, "%s\x00", filepath.ToSlash(rel))
		if err := hashFile(h, f); err != nil {
			return nil, err
		}
	}
	return h.Sum(nil), nil
}

func hashFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

func mac(key, digest []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(digest)
	return h.Sum(nil)
}

// signedBytes is what the signature covers: every manifest field except
// Signature, length-prefixed, followed by the payload digest.
func signedBytes(m Manifest, digest []byte) []byte {
	fields := []string{
		strconv.Itoa(m.FormatVersion),
		m.Backend,
		m.Embedder,
		strconv.Itoa(m.Dimension),
		strconv.Itoa(m.ChunkCount),
		m.Checksum,
		m.CreatedAt.UTC().Format(time.RFC3339Nano),
		m.Summary,
		m.EmbedderState,
	}
	var b bytes.Buffer
	for _, f := range fields {
		fmt.Fprintf(&b, "%d:%s", len(f), f)
	}
	b.Write(digest)
	return b.Bytes()
}

func sign(key []byte, m Manifest, digest []byte) string {
	if len(key) == 0 {
		return ""
	}
	return hex.EncodeToString(mac(key, signedBytes(m, digest)))
}

// verify checks the payload at path against the manifest, and the manifest
// itself against its signature, before anything decodes either.
func verify(path string, m Manifest, key []byte) error {
	digest, err := payloadDigest(path)
	if err != nil {
		return fmt.Errorf("%w: payload: %v", ErrDeserialization, err)
	}
	if hex.EncodeToString(digest) != m.Checksum {
		return fmt.Errorf("%w: checksum mismatch", ErrDeserialization)
	}
	if len(key) > 0 {
		got, err := hex.DecodeString(m.Signature)
		if err != nil || !hmac.Equal(got, mac(key, signedBytes(m, digest))) {
			return fmt.Errorf("%w: signature mismatch", ErrDeserialization)
		}
	}
	return nil
}
