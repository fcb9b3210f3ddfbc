package copyright

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, name, content string) string {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0644))
	return full
}

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	writeFile(t, dir, ".gitignore", "build/\n")
	writeFile(t, dir, "CMakeLists.txt", "project(ardep)\n")
	writeFile(t, dir, "src/main.c", "int main() {}\n")
	writeFile(t, dir, "boards/ardep.dts", "/dts-v1/;\n")
	writeFile(t, dir, "samples/uds/sample.yaml", "sample:\n")

	wt, err := repo.Worktree()
	require.NoError(t, err)
	for _, name := range []string{".gitignore", "CMakeLists.txt", "src/main.c", "boards/ardep.dts", "samples/uds/sample.yaml"} {
		_, err := wt.Add(name)
		require.NoError(t, err)
	}
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "ardep", Email: "ardep@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	// Untracked but not ignored.
	writeFile(t, dir, "scripts/flash.py", "import sys\n")
	writeFile(t, dir, "Kconfig", "config ARDEP\n")
	// Ignored.
	writeFile(t, dir, "build/zephyr/autoconf.h", "#define X 1\n")
	return dir
}

func Test_ListFiles(t *testing.T) {
	dir := initRepo(t)

	buckets, err := ListFiles(dir)
	require.NoError(t, err)

	assert.Equal(t, map[string][]string{
		CMakeBucket:   {filepath.Join(dir, "CMakeLists.txt")},
		KconfigBucket: {filepath.Join(dir, "Kconfig")},
		".c":          {filepath.Join(dir, "src", "main.c")},
		".dts":        {filepath.Join(dir, "boards", "ardep.dts")},
		".py":         {filepath.Join(dir, "scripts", "flash.py")},
	}, buckets)
}

func Test_ListFilesSubdirectory(t *testing.T) {
	dir := initRepo(t)

	buckets, err := ListFiles(filepath.Join(dir, "src"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "src", "main.c")}, Flatten(buckets))
}

func Test_ListFilesNotRepository(t *testing.T) {
	_, err := ListFiles(t.TempDir())
	assert.ErrorIs(t, err, ErrNotRepository)
}

func Test_Classify(t *testing.T) {
	buckets := Classify([]string{
		"/repo/CMakeLists.txt",
		"/repo/Kconfig.board",
		"/repo/src/uds.c",
		"/repo/include/uds.h",
		"/repo/app.overlay",
		"/repo/west.yml",
		"/repo/samples/foo/sample.yaml",
		"/repo/tests/testcase.yml",
		"/repo/README.md",
		"/repo/tools/gen.py",
	})

	assert.Equal(t, map[string][]string{
		CMakeBucket:   {"/repo/CMakeLists.txt"},
		KconfigBucket: {"/repo/Kconfig.board"},
		".c":          {"/repo/src/uds.c"},
		".h":          {"/repo/include/uds.h"},
		".overlay":    {"/repo/app.overlay"},
		".yml":        {"/repo/west.yml"},
		".py":         {"/repo/tools/gen.py"},
	}, buckets)
}

func Test_FilterPreset(t *testing.T) {
	buckets := map[string][]string{
		".c":        {"a.c"},
		".py":       {"b.py"},
		CMakeBucket: {"CMakeLists.txt"},
	}

	all, err := FilterPreset(buckets, PresetAll)
	require.NoError(t, err)
	assert.Equal(t, buckets, all)

	zephyr, err := FilterPreset(buckets, PresetZephyr)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.c", "CMakeLists.txt"}, Flatten(zephyr))

	python, err := FilterPreset(buckets, PresetPython)
	require.NoError(t, err)
	assert.Equal(t, []string{"b.py"}, Flatten(python))

	_, err = FilterPreset(buckets, "rust")
	assert.Error(t, err)
}
