package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
monotonic:
  initial_size: 4096
pool:
  max_blocks_per_chunk: 64
  largest_required_pool_block: 65536
`

func TestParseSampleConfig(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, uintptr(4096), c.Monotonic.InitialSize)
	assert.Equal(t, uint32(64), c.Pool.MaxBlocksPerChunk)
	assert.Equal(t, uintptr(65536), c.Pool.LargestRequiredPoolBlock)
}

func TestPoolToOptions(t *testing.T) {
	p := Pool{MaxBlocksPerChunk: 32, LargestRequiredPoolBlock: 1024}
	o := p.ToOptions()
	assert.Equal(t, uint32(32), o.MaxBlocksPerChunk)
	assert.Equal(t, uintptr(1024), o.LargestRequiredPoolBlock)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/ipcator-config.yaml")
	assert.Error(t, err)
}
