package canonical

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type tarEntry struct {
	header *tar.Header
	body   []byte
}

// NormalizeTar rewrites a tar stream deterministically: entries in sorted
// name order, fixed owner and mtime, access/change times cleared. Entry
// bodies pass through untouched.
func NormalizeTar(raw []byte) ([]byte, error) {
	tr := tar.NewReader(bytes.NewReader(raw))
	entries := make([]tarEntry, 0)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar entry: %w", err)
		}
		body, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("read tar body %s: %w", hdr.Name, err)
		}
		entries = append(entries, tarEntry{header: hdr, body: body})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].header.Name < entries[j].header.Name
	})

	var out bytes.Buffer
	tw := tar.NewWriter(&out)
	for _, e := range entries {
		if err := writeNormalizedEntry(tw, e.header, e.body); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar: %w", err)
	}
	return out.Bytes(), nil
}

func writeNormalizedEntry(tw *tar.Writer, hdr *tar.Header, body []byte) error {
	norm := &tar.Header{
		Typeflag: hdr.Typeflag,
		Name:     hdr.Name,
		Linkname: hdr.Linkname,
		Size:     hdr.Size,
		Mode:     hdr.Mode,
		Uid:      0,
		Gid:      0,
		Uname:    "root",
		Gname:    "root",
		ModTime:  RefInstant,
		Devmajor: hdr.Devmajor,
		Devminor: hdr.Devminor,
		Format:   tar.FormatGNU,
	}
	if err := tw.WriteHeader(norm); err != nil {
		return fmt.Errorf("write tar header %s: %w", hdr.Name, err)
	}
	if _, err := tw.Write(body); err != nil {
		return fmt.Errorf("write tar body %s: %w", hdr.Name, err)
	}
	return nil
}

// TarTree produces a deterministic tar of the directory tree at root, with
// entry names prefixed "./" in sorted order, the way dpkg-deb lays out its
// members.
func TarTree(root string) ([]byte, error) {
	type node struct {
		rel  string
		path string
		info os.FileInfo
	}
	nodes := make([]node, 0)
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		nodes = append(nodes, node{rel: rel, path: path, info: info})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].rel < nodes[j].rel })

	var out bytes.Buffer
	tw := tar.NewWriter(&out)
	for _, n := range nodes {
		name := "./"
		if n.rel != "." {
			name = "./" + n.rel
		}
		link := ""
		if n.info.Mode()&os.ModeSymlink != 0 {
			link, err = os.Readlink(n.path)
			if err != nil {
				return nil, fmt.Errorf("readlink %s: %w", n.path, err)
			}
		}
		hdr, err := tar.FileInfoHeader(n.info, link)
		if err != nil {
			return nil, fmt.Errorf("tar header %s: %w", n.rel, err)
		}
		hdr.Name = name
		if n.info.IsDir() && !strings.HasSuffix(hdr.Name, "/") {
			hdr.Name += "/"
		}
		var body []byte
		if n.info.Mode().IsRegular() {
			body, err = os.ReadFile(n.path)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", n.path, err)
			}
			hdr.Size = int64(len(body))
		}
		if err := writeNormalizedEntry(tw, hdr, body); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar: %w", err)
	}
	return out.Bytes(), nil
}

// ExtractTar unpacks a tar stream under dst. Used to stage the deb payload
// tree that the rpm step rebuilds from.
func ExtractTar(raw []byte, dst string) error {
	tr := tar.NewReader(bytes.NewReader(raw))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}
		name := filepath.FromSlash(strings.TrimPrefix(hdr.Name, "./"))
		if name == "" || name == "." {
			continue
		}
		target := filepath.Join(dst, name)
		rel, err := filepath.Rel(dst, target)
		if err != nil || strings.HasPrefix(rel, "..") {
			return fmt.Errorf("tar entry escapes destination: %s", hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)&0o777|0o700); err != nil {
				return fmt.Errorf("mkdir %s: %w", target, err)
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("symlink %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			body, err := io.ReadAll(tr)
			if err != nil {
				return fmt.Errorf("read tar body %s: %w", hdr.Name, err)
			}
			if err := os.WriteFile(target, body, os.FileMode(hdr.Mode)&0o777); err != nil {
				return fmt.Errorf("write %s: %w", target, err)
			}
		default:
			return fmt.Errorf("unsupported tar entry type %d for %s", hdr.Typeflag, hdr.Name)
		}
		if hdr.Typeflag != tar.TypeSymlink {
			if err := os.Chtimes(target, RefInstant, RefInstant); err != nil {
				return fmt.Errorf("chtimes %s: %w", target, err)
			}
		}
	}
}
