package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gotunnel/gt/internal/descriptor"
)

// maxConfigSize is the size above which a directory entry is skipped
// during discovery, regardless of extension.
const maxConfigSize = 10 * 1024 * 1024 // 10 MiB

// ErrNoTargetFound is returned when discovery yields no descriptors.
var ErrNoTargetFound = errors.New("config: no target found")

// Discover walks root (a file, a directory, or "" for the current
// working directory) and returns one path-kind Descriptor per
// accepted config. Directory entries are not recursed into; entries
// >= 10 MiB or without a .yaml/.yml extension are skipped. A file
// path is accepted unconditionally as a single descriptor.
//
// fsys is the filesystem to read from; pass nil to read root through
// the os package directly (the default in production). Tests can pass
// an fstest.MapFS rooted relative to root instead.
func Discover(fsys fs.FS, root string) ([]descriptor.Descriptor, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("config: getting working directory: %w", err)
		}
		root = wd
	}

	var (
		descs []descriptor.Descriptor
		err   error
	)
	if fsys != nil {
		descs, err = discoverFS(fsys, root)
	} else {
		descs, err = discoverOS(root)
	}
	if err != nil {
		return nil, err
	}
	if len(descs) == 0 {
		return nil, ErrNoTargetFound
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Less(descs[j]) })
	return descs, nil
}

func discoverOS(root string) ([]descriptor.Descriptor, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("config: statting %q: %w", root, err)
	}
	if !info.IsDir() {
		return pathToDescriptor(root)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("config: reading directory %q: %w", root, err)
	}
	var descs []descriptor.Descriptor
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !hasYAMLExt(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if fi.Size() >= maxConfigSize {
			continue
		}
		full := filepath.Join(root, e.Name())
		d, err := pathToDescriptor(full)
		if err != nil {
			return nil, err
		}
		descs = append(descs, d...)
	}
	return descs, nil
}

func pathToDescriptor(p string) ([]descriptor.Descriptor, error) {
	doc, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", p, err)
	}
	role, err := Classify(doc)
	if err != nil {
		return nil, fmt.Errorf("config: classifying %q: %w", p, err)
	}
	return []descriptor.Descriptor{descriptor.Path(p, role)}, nil
}

// discoverFS mirrors discoverOS but reads through an fs.FS, for tests.
func discoverFS(fsys fs.FS, root string) ([]descriptor.Descriptor, error) {
	info, err := fs.Stat(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("config: statting %q: %w", root, err)
	}
	if !info.IsDir() {
		return pathToDescriptorFS(fsys, root)
	}

	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("config: reading directory %q: %w", root, err)
	}
	var descs []descriptor.Descriptor
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !hasYAMLExt(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if fi.Size() >= maxConfigSize {
			continue
		}
		full := path.Join(root, e.Name())
		d, err := pathToDescriptorFS(fsys, full)
		if err != nil {
			return nil, err
		}
		descs = append(descs, d...)
	}
	return descs, nil
}

func pathToDescriptorFS(fsys fs.FS, p string) ([]descriptor.Descriptor, error) {
	doc, err := fs.ReadFile(fsys, p)
	if err != nil {
		return nil, fmt.Errorf("config: reading %q: %w", p, err)
	}
	role, err := Classify(doc)
	if err != nil {
		return nil, fmt.Errorf("config: classifying %q: %w", p, err)
	}
	return []descriptor.Descriptor{descriptor.Path(p, role)}, nil
}

func hasYAMLExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
