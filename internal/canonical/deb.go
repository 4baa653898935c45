package canonical

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/blakesmith/ar"
	"github.com/ulikunitz/xz"
)

// Fixed member order of the outer archive. dpkg requires debian-binary
// first; the rest is pinned so the toolchain's emission order never shows.
var debMemberOrder = []string{"debian-binary", "control", "data"}

type debMember struct {
	name string
	body []byte
}

// CanonicalizeDeb rewrites a deb package in place: both embedded tar
// archives are re-archived with sorted entries, fixed ownership, and the
// reference mtime, then recompressed with deterministic settings and
// reassembled in fixed member order.
func CanonicalizeDeb(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read deb %s: %w", path, err)
	}

	members, err := readArMembers(raw)
	if err != nil {
		return fmt.Errorf("parse deb %s: %w", path, err)
	}

	ordered := make([]debMember, 0, len(members))
	for _, role := range debMemberOrder {
		m, ok := findDebMember(members, role)
		if !ok {
			return fmt.Errorf("deb %s missing %s member", path, role)
		}
		if role != "debian-binary" {
			normalized, err := normalizeCompressedTar(m.name, m.body)
			if err != nil {
				return fmt.Errorf("normalize %s of %s: %w", m.name, path, err)
			}
			m.body = normalized
		}
		ordered = append(ordered, m)
	}

	var out bytes.Buffer
	w := ar.NewWriter(&out)
	if err := w.WriteGlobalHeader(); err != nil {
		return fmt.Errorf("write ar header: %w", err)
	}
	for _, m := range ordered {
		hdr := &ar.Header{
			Name:    m.name,
			ModTime: RefInstant,
			Uid:     0,
			Gid:     0,
			Mode:    0o100644,
			Size:    int64(len(m.body)),
		}
		if err := w.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write ar member %s: %w", m.name, err)
		}
		if _, err := w.Write(m.body); err != nil {
			return fmt.Errorf("write ar body %s: %w", m.name, err)
		}
	}

	return os.WriteFile(path, out.Bytes(), 0o644)
}

func readArMembers(raw []byte) ([]debMember, error) {
	r := ar.NewReader(bytes.NewReader(raw))
	members := make([]debMember, 0, 3)
	for {
		hdr, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		body, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read member %s: %w", hdr.Name, err)
		}
		members = append(members, debMember{name: strings.TrimSuffix(hdr.Name, "/"), body: body})
	}
	return members, nil
}

func findDebMember(members []debMember, role string) (debMember, bool) {
	for _, m := range members {
		if role == "debian-binary" && m.name == role {
			return m, true
		}
		if strings.HasPrefix(m.name, role+".tar") {
			return m, true
		}
	}
	return debMember{}, false
}

// normalizeCompressedTar decompresses a control/data member, normalizes the
// inner tar, and recompresses with the member's original codec at fixed
// settings.
func normalizeCompressedTar(name string, body []byte) ([]byte, error) {
	inner, codec, err := decompressMember(name, body)
	if err != nil {
		return nil, err
	}
	normalized, err := NormalizeTar(inner)
	if err != nil {
		return nil, err
	}
	return compressMember(codec, normalized)
}

func decompressMember(name string, body []byte) (inner []byte, codec string, err error) {
	switch {
	case strings.HasSuffix(name, ".tar.gz"):
		zr, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, "", fmt.Errorf("gzip open: %w", err)
		}
		defer zr.Close()
		inner, err = io.ReadAll(zr)
		return inner, "gz", err
	case strings.HasSuffix(name, ".tar.xz"):
		xr, err := xz.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, "", fmt.Errorf("xz open: %w", err)
		}
		inner, err = io.ReadAll(xr)
		return inner, "xz", err
	case strings.HasSuffix(name, ".tar"):
		return body, "none", nil
	default:
		return nil, "", fmt.Errorf("unsupported member compression: %s", name)
	}
}

func compressMember(codec string, inner []byte) ([]byte, error) {
	switch codec {
	case "gz":
		var out bytes.Buffer
		zw, err := gzip.NewWriterLevel(&out, gzip.BestCompression)
		if err != nil {
			return nil, err
		}
		// Fixed header: no embedded name, reference mtime.
		zw.Name = ""
		zw.ModTime = RefInstant
		if _, err := zw.Write(inner); err != nil {
			return nil, fmt.Errorf("gzip write: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("gzip close: %w", err)
		}
		return out.Bytes(), nil
	case "xz":
		var out bytes.Buffer
		xw, err := xz.NewWriter(&out)
		if err != nil {
			return nil, err
		}
		if _, err := xw.Write(inner); err != nil {
			return nil, fmt.Errorf("xz write: %w", err)
		}
		if err := xw.Close(); err != nil {
			return nil, fmt.Errorf("xz close: %w", err)
		}
		return out.Bytes(), nil
	case "none":
		return inner, nil
	default:
		return nil, fmt.Errorf("unsupported codec %s", codec)
	}
}

// DebDataTree extracts the canonicalized data member's payload tree under
// dst. The rpm step rebuilds from this tree so both formats carry
// byte-identical payloads.
func DebDataTree(debPath, dst string) error {
	raw, err := os.ReadFile(debPath)
	if err != nil {
		return fmt.Errorf("read deb %s: %w", debPath, err)
	}
	members, err := readArMembers(raw)
	if err != nil {
		return fmt.Errorf("parse deb %s: %w", debPath, err)
	}
	m, ok := findDebMember(members, "data")
	if !ok {
		return fmt.Errorf("deb %s missing data member", debPath)
	}
	inner, _, err := decompressMember(m.name, m.body)
	if err != nil {
		return fmt.Errorf("decompress %s: %w", m.name, err)
	}
	return ExtractTar(inner, dst)
}
