package skills

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// FileEntry records one file's contribution to a tree digest.
type FileEntry struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// HashTree computes a deterministic content digest over a skill directory.
// Relative paths are normalized to forward slashes and sorted
// lexicographically before hashing, so two byte-identical trees produce the
// same digest regardless of filesystem iteration order. The digest covers
// both paths and file contents.
func HashTree(root string) (string, []FileEntry, error) {
	info, err := os.Stat(root)
	if err != nil {
		return "", nil, errors.Wrapf(err, "failed to stat %s", root)
	}
	if !info.IsDir() {
		return "", nil, errors.Errorf("%s is not a directory", root)
	}

	var entries []FileEntry
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		fileHash, err := hashFile(path)
		if err != nil {
			return err
		}

		entries = append(entries, FileEntry{
			Path: filepath.ToSlash(relPath),
			Hash: fileHash,
			Size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return "", nil, errors.Wrapf(err, "failed to hash %s", root)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	hasher := sha256.New()
	for _, entry := range entries {
		hasher.Write([]byte(entry.Path))
		hasher.Write([]byte(entry.Hash))
	}

	return fmt.Sprintf("sha256:%s", hex.EncodeToString(hasher.Sum(nil))), entries, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", errors.Wrapf(err, "failed to read %s", path)
	}

	return fmt.Sprintf("sha256:%s", hex.EncodeToString(hasher.Sum(nil))), nil
}
