package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/go-wdl/wdlrun/internal/download"
	"github.com/go-wdl/wdlrun/internal/types"
	"github.com/go-wdl/wdlrun/internal/values"
)

func TestLocalizeValueSkipsAbsentAndNonFileKinds(t *testing.T) {
	cmd := &cobra.Command{}
	orch := &download.Orchestrator{}

	n, err := localizeValue(cmd, orch, values.Absent(&types.Type{Kind: types.File}))
	require.NoError(t, err)
	require.Equal(t, 0, n)

	n, err = localizeValue(cmd, orch, values.NewString("plain string, not a File"))
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestLocalizeValueSkipsFileWithNoVirtualPath(t *testing.T) {
	cmd := &cobra.Command{}
	orch := &download.Orchestrator{}

	v := values.Value{Type: &types.Type{Kind: types.File}}
	n, err := localizeValue(cmd, orch, v)
	require.NoError(t, err)
	require.Equal(t, 0, n, "a File value with an empty virtual path is skipped rather than resolved")
}

func TestLocalizeValueRecursesIntoArrayMapPairAndStruct(t *testing.T) {
	cmd := &cobra.Command{}
	orch := &download.Orchestrator{}

	noFile := values.NewString("x")

	arr := values.NewArray(&types.Type{Kind: types.String}, false, []values.Value{noFile, noFile})
	n, err := localizeValue(cmd, orch, arr)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	m := values.NewOrderedMap()
	m.Put(values.NewString("k"), noFile)
	mapVal := values.NewMap(&types.Type{Kind: types.String}, &types.Type{Kind: types.String}, m)
	n, err = localizeValue(cmd, orch, mapVal)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	pairVal := values.NewPair(noFile, noFile)
	n, err = localizeValue(cmd, orch, pairVal)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	structVal := values.Value{
		Type:   &types.Type{Kind: types.StructInstance},
		Fields: []values.Field{{Name: "a", Value: noFile}, {Name: "b", Value: noFile}},
	}
	n, err = localizeValue(cmd, orch, structVal)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
