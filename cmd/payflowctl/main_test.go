package main

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()

	for _, path := range [][]string{
		{"settlements", "list"},
		{"settlements", "process"},
		{"settlements", "retry"},
		{"settlements", "run-due"},
		{"settlements", "sweep"},
		{"wallet", "show"},
		{"wallet", "transactions"},
		{"payments", "history"},
		{"payments", "cancel"},
		{"scheduler", "run-once"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestProcessRejectsBadID(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"settlements", "process", "abc"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid id")
}

func TestParseID(t *testing.T) {
	id, err := parseID("1234")
	require.NoError(t, err)
	assert.Equal(t, snowflake.ID(1234), id)

	_, err = parseID("-1")
	assert.Error(t, err)
}
