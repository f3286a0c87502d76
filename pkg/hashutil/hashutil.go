// Package hashutil provides streaming SHA-256 of files and the
// HASHES.sha256 sidecar's read/write/verify operations.
package hashutil

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/legeapp/openarc/pkg/common"
)

const readUnit = 1 << 20 // 1 MiB

// Sha256Bytes hashes an in-memory byte slice.
func Sha256Bytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Sha256Reader streams content from r in 1 MiB units.
func Sha256Reader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, readUnit)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", common.Wrap(common.KindInputUnreadable, "", fmt.Errorf("read while hashing: %w", err))
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Sha256File hashes the file at path.
func Sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", common.Wrap(common.KindInputUnreadable, path, err)
	}
	defer f.Close()

	sum, err := Sha256Reader(f)
	if err != nil {
		return "", common.Wrap(common.KindInputUnreadable, path, err)
	}
	return sum, nil
}

// HashPair is one line of a hash sidecar: a hex digest and the archive- or
// directory-relative path it covers.
type HashPair struct {
	Hash string
	Rel  string
}

// BuildDedupMap hashes every file and groups paths by content hash. The
// orchestrator uses the first entry of each group as the canonical file.
func BuildDedupMap(files []string) (map[string][]string, error) {
	m := make(map[string][]string)
	for _, f := range files {
		sum, err := Sha256File(f)
		if err != nil {
			return nil, err
		}
		m[sum] = append(m[sum], f)
	}
	return m, nil
}

// WriteHashesFile writes the HASHES.sha256 sidecar: one "<hex>  <rel>" line
// per pair.
func WriteHashesFile(pairs []HashPair, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return common.Wrap(common.KindStagingIoFailure, outputPath, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, p := range pairs {
		if _, err := fmt.Fprintf(w, "%s  %s\n", p.Hash, p.Rel); err != nil {
			return common.Wrap(common.KindStagingIoFailure, outputPath, err)
		}
	}
	return w.Flush()
}

// ReadHashesFile parses a HASHES.sha256 sidecar.
func ReadHashesFile(path string) ([]HashPair, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, common.Wrap(common.KindInputUnreadable, path, err)
	}
	defer f.Close()

	var out []HashPair
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, common.Wrap(common.KindInputUnreadable, path, fmt.Errorf("invalid hashes line: %q", line))
		}
		out = append(out, HashPair{Hash: fields[0], Rel: fields[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, common.Wrap(common.KindInputUnreadable, path, err)
	}
	return out, nil
}

// VerifyAgainst re-hashes every entry named in hashesPath, rooted at
// rootDir, and fails on the first mismatch.
func VerifyAgainst(rootDir, hashesPath string) error {
	entries, err := ReadHashesFile(hashesPath)
	if err != nil {
		return err
	}

	for _, e := range entries {
		full := filepath.Join(rootDir, e.Rel)
		actual, err := Sha256File(full)
		if err != nil {
			return err
		}
		if actual != e.Hash {
			return &common.HashMismatchError{RelPath: e.Rel, Expected: e.Hash, Actual: actual}
		}
	}
	return nil
}

// ExtractFunc is the narrow contract VerifyTarZst needs from the container
// layer: extract archivePath's contents into destDir. Passed explicitly
// rather than imported so this package has no dependency on pkg/container,
// mirroring the original's explicit `&ZstdCodec` parameter.
type ExtractFunc func(archivePath, destDir string) error

// VerifyTarZst extracts archivePath to an ephemeral directory via extract,
// then verifies its HASHES.sha256 sidecar.
func VerifyTarZst(archivePath string, extract ExtractFunc) error {
	tmp, err := os.MkdirTemp("", "openarc-verify-*")
	if err != nil {
		return common.Wrap(common.KindStagingIoFailure, archivePath, err)
	}
	defer os.RemoveAll(tmp)

	if err := extract(archivePath, tmp); err != nil {
		return common.Wrap(common.KindContainerSealFailed, archivePath, err)
	}

	return VerifyAgainst(tmp, filepath.Join(tmp, "HASHES.sha256"))
}
