package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

type TreeEntry struct {
	Path   string
	Digest string
	Size   int64
}

// DigestTree hashes every regular file under root and folds the sorted
// per-file lines into one tree digest. The line format is stable, so two
// trees with identical contents always produce the same digest regardless
// of traversal order.
func DigestTree(root string) (digest string, entries []TreeEntry, err error) {
	entries = make([]TreeEntry, 0)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		fileDigest, size, err := DigestFile(path)
		if err != nil {
			return err
		}
		entries = append(entries, TreeEntry{Path: filepath.ToSlash(rel), Digest: fileDigest, Size: size})
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("walk tree %s: %w", root, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})

	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("%s\x00%s\x00%d\n", e.Path, e.Digest, e.Size))
	}
	h := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(h[:]), entries, nil
}
