package fsx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
)

func TestWriteFileAtomicReplace_OverwriteAndNoTempLeft(t *testing.T) {
	dir := t.TempDir()

	gt.NoError(t, WriteFileAtomicReplace(dir, "a.txt", []byte("hello"))).Required()
	gt.NoError(t, WriteFileAtomicReplace(dir, "a.txt", []byte("world"))).Required()

	b, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	gt.NoError(t, err).Required()
	gt.Equal(t, string(b), "world")

	assertNoTemp(t, dir)
}

func TestWriteFileAtomic_RenameFail_CleanupTemp(t *testing.T) {
	dir := t.TempDir()

	old := renameFunc
	renameFunc = func(oldpath, newpath string) error {
		return os.ErrPermission
	}
	defer func() { renameFunc = old }()

	gt.Error(t, WriteFileAtomicReplace(dir, "a.txt", []byte("hello")))

	entries, err := os.ReadDir(dir)
	gt.NoError(t, err).Required()
	gt.A(t, entries).Length(0)
}

func TestCopyFileAtomic_CreatesParentAndOverwrites(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.webp")
	gt.NoError(t, os.WriteFile(src, []byte("v1"), 0o600)).Required()

	dst := filepath.Join(dir, "out", "memories", "x_front.webp")
	gt.NoError(t, CopyFileAtomic(src, dst)).Required()

	gt.NoError(t, os.WriteFile(src, []byte("v2"), 0o600)).Required()
	gt.NoError(t, CopyFileAtomic(src, dst)).Required()

	b, err := os.ReadFile(dst)
	gt.NoError(t, err).Required()
	gt.Equal(t, string(b), "v2")

	fi, err := os.Stat(dst)
	gt.NoError(t, err).Required()
	gt.Equal(t, fi.Mode().Perm(), os.FileMode(0o644))

	assertNoTemp(t, filepath.Dir(dst))
}

func TestCopyFileAtomic_MissingSource(t *testing.T) {
	dir := t.TempDir()
	err := CopyFileAtomic(filepath.Join(dir, "nope"), filepath.Join(dir, "dst"))
	gt.Error(t, err)
	gt.True(t, os.IsNotExist(err))
}

func TestCopyFileAtomic_TargetIsDir(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	gt.NoError(t, os.WriteFile(src, []byte("x"), 0o644)).Required()
	dst := filepath.Join(dir, "dst")
	gt.NoError(t, os.Mkdir(dst, 0o755)).Required()

	err := CopyFileAtomic(src, dst)
	gt.True(t, IsPathTypeConflict(err))
}

func TestEnsureDir(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a", "b")

	gt.NoError(t, EnsureDir(p))
	gt.NoError(t, EnsureDir(p)) // 幂等

	f := filepath.Join(dir, "file")
	gt.NoError(t, os.WriteFile(f, []byte("x"), 0o644)).Required()
	gt.True(t, IsPathTypeConflict(EnsureDir(f)))
}

func assertNoTemp(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	gt.NoError(t, err).Required()
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Fatalf("临时文件未清理：%q", e.Name())
		}
	}
}
