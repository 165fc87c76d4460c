package dabgent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"unicode/utf8"
)

// DefaultTemplateSkipDirs names directories never walked while collecting a
// template: build artifacts and package caches that would otherwise bloat
// the hash and every seeded sandbox.
var DefaultTemplateSkipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	".venv":        true,
	"target":       true,
	"dist":         true,
	"build":        true,
}

// TemplateFile is one file captured from a template source tree.
type TemplateFile struct {
	Path    string // slash-separated, relative to the template root
	Content []byte
}

// CollectTemplateFiles walks fsys from root, skipping DefaultTemplateSkipDirs,
// and returns every regular file found, sorted by path. Binary (non-UTF8)
// files are skipped; callers get a warning list back so they can log it.
func CollectTemplateFiles(fsys fs.FS, root string) (files []TemplateFile, skippedBinary []string, err error) {
	err = fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if DefaultTemplateSkipDirs[d.Name()] && p != root {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil // symlinks and other special files are not captured
		}
		data, rerr := fs.ReadFile(fsys, p)
		if rerr != nil {
			return rerr
		}
		if !utf8.Valid(data) {
			skippedBinary = append(skippedBinary, p)
			return nil
		}
		rel := p
		if root != "." && len(p) > len(root) {
			rel = path.Clean(p[len(root)+1:]) // strip the "root/" prefix WalkDir adds
		}
		files = append(files, TemplateFile{Path: rel, Content: data})
		return nil
	})
	if err != nil {
		return nil, skippedBinary, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, skippedBinary, nil
}

// ComputeTemplateHash returns a deterministic SHA-256 hash of files, used as
// the template's identity: two template sources with identical content
// (regardless of walk order, since files is already sorted by
// CollectTemplateFiles) hash the same. The hash is over each file's
// "path\ncontent\n" record concatenated in sorted-path order.
func ComputeTemplateHash(files []TemplateFile) string {
	h := sha256.New()
	for _, f := range files {
		h.Write([]byte(f.Path))
		h.Write([]byte{'\n'})
		h.Write(f.Content)
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// WriteTemplateFiles materializes files into sb in sorted path order so
// that write ordering (and thus any sandbox that records it) is itself
// deterministic.
func WriteTemplateFiles(ctx context.Context, sb Sandbox, files []TemplateFile) error {
	for _, f := range files {
		if err := sb.WriteFile(ctx, f.Path, f.Content); err != nil {
			return fmt.Errorf("seed %s: %w", f.Path, err)
		}
	}
	return nil
}

// Template is a named, content-addressed set of files a fresh sandbox is
// seeded from before a Tool Handler starts processing an aggregate's tool
// calls for the first time.
type Template struct {
	Name string
	Hash string
	Files []TemplateFile
}

// NewTemplate collects files from fsys/root and computes its hash.
func NewTemplate(name string, fsys fs.FS, root string) (Template, []string, error) {
	files, skipped, err := CollectTemplateFiles(fsys, root)
	if err != nil {
		return Template{}, nil, err
	}
	return Template{Name: name, Hash: ComputeTemplateHash(files), Files: files}, skipped, nil
}

// Seed writes the template into sb.
func (t Template) Seed(ctx context.Context, sb Sandbox) error {
	return WriteTemplateFiles(ctx, sb, t.Files)
}
