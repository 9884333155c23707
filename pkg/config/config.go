// Package config loads allocator options from YAML, mapping 1:1 onto
// monobuf's and pool's construction options.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shynur/ipcator/pkg/pool"
)

// Monotonic mirrors monobuf.WithInitialSize's one knob.
type Monotonic struct {
	InitialSize uintptr `yaml:"initial_size"`
}

// Pool mirrors pool.Options.
type Pool struct {
	MaxBlocksPerChunk        uint32  `yaml:"max_blocks_per_chunk"`
	LargestRequiredPoolBlock uintptr `yaml:"largest_required_pool_block"`
}

// ToOptions converts Pool into a pool.Options.
func (p Pool) ToOptions() pool.Options {
	return pool.Options{
		MaxBlocksPerChunk:        p.MaxBlocksPerChunk,
		LargestRequiredPoolBlock: p.LargestRequiredPoolBlock,
	}
}

// Config is the top-level YAML document shape.
type Config struct {
	Monotonic Monotonic `yaml:"monotonic"`
	Pool      Pool      `yaml:"pool"`
}

// Load reads and parses a Config from path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config.Load(%q): %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a Config from raw YAML bytes.
func Parse(data []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config.Parse: %w", err)
	}
	return c, nil
}
