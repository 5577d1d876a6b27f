package app

import (
	"testing"

	"github.com/smallbiznis/payflow/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSnowflakeUsesNodeID(t *testing.T) {
	node, err := NewSnowflake(config.Config{NodeID: 7})
	require.NoError(t, err)
	assert.Equal(t, int64(7), node.Generate().Node())
}

func TestNewSnowflakeRejectsOutOfRangeNode(t *testing.T) {
	_, err := NewSnowflake(config.Config{NodeID: 4096})
	assert.Error(t, err)
}
