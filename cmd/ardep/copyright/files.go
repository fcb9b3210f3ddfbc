// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package copyright

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
)

var ErrNotRepository = errors.New("provided path is not inside a git repository")

// Bucket keys that are not plain file suffixes.
const (
	CMakeBucket   = "CMakeLists.txt"
	KconfigBucket = "Kconfig"
)

var allowedSuffixes = map[string]bool{
	".c":       true,
	".h":       true,
	".cpp":     true,
	".hpp":     true,
	".dts":     true,
	".dtsi":    true,
	".yaml":    true,
	".yml":     true,
	".py":      true,
	".overlay": true,
}

var excludedNames = map[string]bool{
	"sample.yml":    true,
	"sample.yaml":   true,
	"testcase.yml":  true,
	"testcase.yaml": true,
}

// Presets select which buckets are processed.
const (
	PresetAll    = ""
	PresetZephyr = "zephyr"
	PresetPython = "python"
)

func Presets() []string {
	return []string{PresetZephyr, PresetPython}
}

// ListFiles returns the files below root that git tracks or would track
// (untracked but not ignored), grouped by bucket. Paths are absolute.
func ListFiles(root string) (map[string][]string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	stat, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	candidate := abs
	if !stat.IsDir() {
		candidate = filepath.Dir(abs)
	}

	repo, err := git.PlainOpenWithOptions(candidate, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: %s", ErrNotRepository, abs)
	} else if err != nil {
		return nil, err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	top := wt.Filesystem.Root()

	// The repository root may be reported through a symlink-free path.
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	if resolved, err := filepath.EvalSymlinks(top); err == nil {
		top = resolved
	}
	target, err := filepath.Rel(top, abs)
	if err != nil {
		return nil, err
	}
	target = filepath.ToSlash(target)

	seen := map[string]bool{}

	idx, err := repo.Storer.Index()
	if err != nil {
		return nil, fmt.Errorf("failed to list files via git: %w", err)
	}
	for _, e := range idx.Entries {
		seen[e.Name] = true
	}

	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to list files via git: %w", err)
	}
	for name, s := range status {
		if s.Worktree == git.Untracked {
			seen[name] = true
		}
	}

	var files []string
	for name := range seen {
		if !under(name, target) {
			continue
		}
		full := filepath.Join(top, filepath.FromSlash(name))
		if info, err := os.Lstat(full); err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, full)
	}
	sort.Strings(files)
	return Classify(files), nil
}

func under(name, target string) bool {
	if target == "." || target == "" {
		return true
	}
	return name == target || strings.HasPrefix(name, target+"/")
}

// Classify filters paths down to the handled file types and groups them.
func Classify(paths []string) map[string][]string {
	buckets := map[string][]string{}
	for _, p := range paths {
		if key, ok := bucketOf(p); ok {
			buckets[key] = append(buckets[key], p)
		}
	}
	return buckets
}

func bucketOf(p string) (string, bool) {
	name := path.Base(filepath.ToSlash(p))
	switch {
	case name == CMakeBucket:
		return CMakeBucket, true
	case strings.HasPrefix(name, KconfigBucket):
		return KconfigBucket, true
	case excludedNames[name]:
		return "", false
	}
	ext := path.Ext(name)
	if allowedSuffixes[ext] {
		return ext, true
	}
	return "", false
}

// FilterPreset restricts buckets to the ones a preset covers.
func FilterPreset(buckets map[string][]string, preset string) (map[string][]string, error) {
	switch preset {
	case PresetAll:
		return buckets, nil
	case PresetZephyr, PresetPython:
	default:
		return nil, fmt.Errorf("unknown configuration '%s', must be one of %s", preset, strings.Join(Presets(), ", "))
	}

	res := map[string][]string{}
	for key, files := range buckets {
		if (key == ".py") == (preset == PresetPython) {
			res[key] = files
		}
	}
	return res, nil
}

// Flatten returns all files of the buckets in a stable order.
func Flatten(buckets map[string][]string) []string {
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var files []string
	for _, k := range keys {
		files = append(files, buckets[k]...)
	}
	return files
}
