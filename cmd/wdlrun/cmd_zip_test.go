package main

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddZipTreeWalksWdlFilesOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.wdl"), []byte("version 1.0\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignore me"), 0o644))
	sub := filepath.Join(dir, "tasks")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "helper.wdl"), []byte("version 1.0\n"), 0o644))

	out := filepath.Join(dir, "bundle.zip")
	f, err := os.Create(out)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	require.NoError(t, addZipTree(w, dir, dir))
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	r, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer r.Close()

	var names []string
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	require.ElementsMatch(t, []string{"main.wdl", "tasks/helper.wdl"}, names)
}

func TestAddZipFileUsesSlashSeparatedRelativePath(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "inputs")
	require.NoError(t, os.Mkdir(sub, 0o755))
	path := filepath.Join(sub, "values.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a":1}`), 0o644))

	out := filepath.Join(dir, "bundle.zip")
	f, err := os.Create(out)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	require.NoError(t, addZipFile(w, dir, path))
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	r, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer r.Close()
	require.Len(t, r.File, 1)
	require.Equal(t, "inputs/values.json", r.File[0].Name)
}
