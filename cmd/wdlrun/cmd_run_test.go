package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-wdl/wdlrun/internal/cliinput"
	"github.com/go-wdl/wdlrun/internal/types"
)

func helloDecls() map[string]*types.Type {
	return map[string]*types.Type{
		"who":  {Kind: types.String},
		"tags": {Kind: types.Array, Item: &types.Type{Kind: types.String}},
		"age":  {Kind: types.Int, Optional: true},
	}
}

func TestBareTaskInputsFromPositionalArgs(t *testing.T) {
	a, err := cliinput.ParseArgs([]string{"who=Alyssa", "tags=a", "tags=b"})
	require.NoError(t, err)

	raw, err := bareTaskInputs(a, helloDecls())
	require.NoError(t, err)

	var who string
	require.NoError(t, json.Unmarshal(raw["who"], &who))
	require.Equal(t, "Alyssa", who)

	var tags []string
	require.NoError(t, json.Unmarshal(raw["tags"], &tags))
	require.Equal(t, []string{"a", "b"}, tags)
}

func TestBareTaskInputsMergesInputFileAndOverrides(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.json")
	require.NoError(t, os.WriteFile(base, []byte(`{"who":"base","tags":["x"]}`), 0o644))

	a, err := cliinput.ParseArgs([]string{"-i", base, "who=override"})
	require.NoError(t, err)

	raw, err := bareTaskInputs(a, helloDecls())
	require.NoError(t, err)

	var who string
	require.NoError(t, json.Unmarshal(raw["who"], &who))
	require.Equal(t, "override", who)

	var tags []string
	require.NoError(t, json.Unmarshal(raw["tags"], &tags))
	require.Equal(t, []string{"x"}, tags)
}

func TestBareTaskInputsNoneAndEmpty(t *testing.T) {
	a, err := cliinput.ParseArgs([]string{"who=Alyssa", "--none", "age", "--empty", "tags"})
	require.NoError(t, err)

	raw, err := bareTaskInputs(a, helloDecls())
	require.NoError(t, err)
	require.Equal(t, json.RawMessage("null"), raw["age"])
	require.Equal(t, json.RawMessage("[]"), raw["tags"])
}

func TestBareTaskInputsRejectsUnknownAssign(t *testing.T) {
	a, err := cliinput.ParseArgs([]string{"nope=1"})
	require.NoError(t, err)
	_, err = bareTaskInputs(a, helloDecls())
	require.Error(t, err)
}

func TestBareTaskInputsRejectsUnknownFileKey(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.json")
	require.NoError(t, os.WriteFile(base, []byte(`{"nope":"x"}`), 0o644))

	a, err := cliinput.ParseArgs([]string{"-i", base})
	require.NoError(t, err)
	_, err = bareTaskInputs(a, helloDecls())
	require.Error(t, err)
}

func TestFiles2FlagsRoundTripsIntoParseArgs(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.json")
	require.NoError(t, os.WriteFile(base, []byte(`{"who":"base"}`), 0o644))

	a, err := cliinput.ParseArgs(files2Flags([]string{base}))
	require.NoError(t, err)
	require.Equal(t, []string{base}, a.Files)
}
