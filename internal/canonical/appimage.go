package canonical

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/secluso/release-tools/internal/execx"
)

// Loader header field offsets. The self-extracting loader reserves a small
// table after its ELF headers; the payload start offset and a 16-byte build
// identifier live at fixed positions. Only these two fields are patched;
// the loader itself is never regenerated, so it keeps working.
const (
	loaderPayloadOffsetField = 0x400
	loaderBuildIDField       = 0x408
	loaderBuildIDLen         = 16
)

// CanonicalizeAppImage rebuilds the compressed filesystem region of an
// AppImage deterministically and splices it behind the original loader.
// appDir is the staged application directory the original bundler consumed.
func CanonicalizeAppImage(ctx context.Context, runner execx.CommandRunner, appImagePath, appDir string) error {
	work, err := os.MkdirTemp("", "secluso-appimage-")
	if err != nil {
		return fmt.Errorf("create appimage workdir: %w", err)
	}
	defer os.RemoveAll(work)

	staged := filepath.Join(work, "AppDir")
	if err := RestageTree(appDir, staged); err != nil {
		return err
	}

	squashPath := filepath.Join(work, "payload.squashfs")
	if err := BuildSquashFS(ctx, runner, staged, squashPath); err != nil {
		return err
	}
	payload, err := os.ReadFile(squashPath)
	if err != nil {
		return fmt.Errorf("read rebuilt squashfs: %w", err)
	}
	return SplicePayload(appImagePath, payload)
}

// RestageTree copies src into a fresh tree at dst, visiting entries in
// sorted order and normalizing every mtime, so the filesystem build sees
// identical input regardless of when or how the files were staged.
func RestageTree(src, dst string) error {
	type entry struct {
		rel  string
		info os.FileInfo
	}
	entries := make([]entry, 0)
	err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		entries = append(entries, entry{rel: filepath.ToSlash(rel), info: info})
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", src, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].rel < entries[j].rel })

	for _, e := range entries {
		from := filepath.Join(src, filepath.FromSlash(e.rel))
		to := dst
		if e.rel != "." {
			to = filepath.Join(dst, filepath.FromSlash(e.rel))
		}
		switch {
		case e.info.IsDir():
			if err := os.MkdirAll(to, 0o755); err != nil {
				return fmt.Errorf("mkdir %s: %w", to, err)
			}
		case e.info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(from)
			if err != nil {
				return fmt.Errorf("readlink %s: %w", from, err)
			}
			if err := os.Symlink(link, to); err != nil {
				return fmt.Errorf("symlink %s: %w", to, err)
			}
			continue
		default:
			raw, err := os.ReadFile(from)
			if err != nil {
				return fmt.Errorf("read %s: %w", from, err)
			}
			if err := os.WriteFile(to, raw, e.info.Mode()&0o777); err != nil {
				return fmt.Errorf("write %s: %w", to, err)
			}
		}
		if err := os.Chtimes(to, RefInstant, RefInstant); err != nil {
			return fmt.Errorf("chtimes %s: %w", to, err)
		}
	}
	return nil
}

// BuildSquashFS rebuilds the filesystem region single-threaded with an
// explicit per-file priority order, so block layout is a pure function of
// directory contents rather than traversal or scheduling order.
func BuildSquashFS(ctx context.Context, runner execx.CommandRunner, appDir, out string) error {
	sortFile, err := writeSortFile(appDir)
	if err != nil {
		return err
	}
	defer os.Remove(sortFile)

	argv := []string{
		"mksquashfs", appDir, out,
		"-noappend",
		"-root-owned",
		"-processors", "1",
		"-sort", sortFile,
		"-fstime", fmt.Sprintf("%d", RefInstant.Unix()),
		"-comp", "gzip",
	}
	if _, err := runner.Run(ctx, "", argv, nil); err != nil {
		return fmt.Errorf("mksquashfs: %w", err)
	}
	return nil
}

// writeSortFile assigns each file a priority equal to its position in the
// sorted name list.
func writeSortFile(appDir string) (string, error) {
	names := make([]string, 0)
	err := filepath.Walk(appDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(appDir, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk %s: %w", appDir, err)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		fmt.Fprintf(&b, "%s %d\n", name, i)
	}
	f, err := os.CreateTemp("", "secluso-sort-")
	if err != nil {
		return "", fmt.Errorf("create sort file: %w", err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return "", fmt.Errorf("write sort file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// SplicePayload replaces the filesystem region of the AppImage with payload,
// keeping the original loader bytes and patching exactly two header fields:
// the payload start offset and the content-derived build identifier.
func SplicePayload(appImagePath string, payload []byte) error {
	raw, err := os.ReadFile(appImagePath)
	if err != nil {
		return fmt.Errorf("read appimage %s: %w", appImagePath, err)
	}
	if len(raw) < loaderBuildIDField+loaderBuildIDLen {
		return fmt.Errorf("appimage %s too small for loader header", appImagePath)
	}

	payloadStart := binary.LittleEndian.Uint64(raw[loaderPayloadOffsetField:])
	if payloadStart == 0 || payloadStart > uint64(len(raw)) {
		return fmt.Errorf("appimage %s has invalid payload offset %d", appImagePath, payloadStart)
	}

	out := make([]byte, 0, int(payloadStart)+len(payload))
	out = append(out, raw[:payloadStart]...)
	out = append(out, payload...)

	binary.LittleEndian.PutUint64(out[loaderPayloadOffsetField:], payloadStart)
	sum := sha256.Sum256(payload)
	copy(out[loaderBuildIDField:loaderBuildIDField+loaderBuildIDLen], sum[:loaderBuildIDLen])

	return os.WriteFile(appImagePath, out, 0o755)
}
