// Package memory provides the arena allocator that backs every component
// field and every GPU upload.
//
// A Manager owns four purpose-tagged Buffers. Buffers hand out BufferViews
// by bump allocation, views hand out Accessors, and accessors translate
// between logical values and bytes. GPU-facing buffers are sized from
// power-of-two edge lengths so their bytes can be reinterpreted as square
// RGBA float textures.
package memory

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

var memoryLogger *log.Logger = log.New(io.Discard, "", 0)

func init() {
	if os.Getenv("GARNET_DEBUG_MEMORY") == "1" {
		memoryLogger = log.New(os.Stdout, "[memory] ", log.Ltime|log.Lmsgprefix)
	}
}

const (
	// Channels is the number of components per texel when a GPU buffer is
	// viewed as a texture.
	Channels = 4
	// ChannelBytes is the byte width of one texel channel (32-bit float).
	ChannelBytes = 4

	DefaultWidth         = 1024
	DefaultHeight        = 1024
	DefaultUniformHeight = 1 // 1024 texels × 16 bytes = 16 KiB, the minimum guaranteed uniform block size
)

// Config holds the edge lengths the arenas are sized from.
type Config struct {
	Width         int // texels per row, power of two
	Height        int // rows of the GPU and CPU buffers, power of two
	UniformHeight int // rows of the uniform-block buffer, power of two
}

// DefaultConfig returns the edge lengths used when nothing else is set.
func DefaultConfig() Config {
	return Config{Width: DefaultWidth, Height: DefaultHeight, UniformHeight: DefaultUniformHeight}
}

// Validate checks every edge is a positive power of two.
func (c Config) Validate() error {
	for _, edge := range []struct {
		name string
		v    int
	}{{"width", c.Width}, {"height", c.Height}, {"uniform height", c.UniformHeight}} {
		if edge.v <= 0 || edge.v&(edge.v-1) != 0 {
			return fmt.Errorf("%w: %s %d is not a power of two", ErrInvalidConfig, edge.name, edge.v)
		}
	}
	return nil
}

// ByteLength returns the size of the arena for the given use.
func (c Config) ByteLength(use BufferUse) int {
	if use == UBOGeneric {
		return c.Width * c.UniformHeight * Channels * ChannelBytes
	}
	return c.Width * c.Height * Channels * ChannelBytes
}

// Manager owns the four arenas of a world. Exactly one exists per world and
// it lives as long as the world does. It is not safe for concurrent use.
type Manager struct {
	config  Config
	buffers map[BufferUse]*Buffer
}

// Stats summarises arena utilisation.
type Stats struct {
	TotalBytes         int64
	TakenBytes         int64
	Views              int
	Accessors          int
	PaddingCorrections int
	BufferStats        map[BufferUse]BufferStats
}

// BufferStats tracks utilisation of one arena.
type BufferStats struct {
	ByteLength         int
	TakenBytes         int
	Views              int
	Accessors          int
	PaddingCorrections int
	Version            uint64
}

// NewManager allocates the four arenas.
func NewManager(config Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		config:  config,
		buffers: make(map[BufferUse]*Buffer, len(BufferUses)),
	}
	for _, use := range BufferUses {
		m.buffers[use] = NewBuffer(config.ByteLength(use), use, use.String())
	}
	memoryLogger.Printf("allocated arenas: %s instance, %s vertex, %s uniform, %s cpu",
		formatNumber(int64(config.ByteLength(GPUInstanceData))),
		formatNumber(int64(config.ByteLength(GPUVertexData))),
		formatNumber(int64(config.ByteLength(UBOGeneric))),
		formatNumber(int64(config.ByteLength(CPUGeneric))),
	)
	return m, nil
}

// Buffer returns the arena for the given use.
func (m *Manager) Buffer(use BufferUse) *Buffer {
	return m.buffers[use]
}

// Config returns the configuration the arenas were sized from.
func (m *Manager) Config() Config { return m.config }

// Stats returns current utilisation.
func (m *Manager) Stats() Stats {
	stats := Stats{BufferStats: make(map[BufferUse]BufferStats, len(m.buffers))}
	for _, use := range BufferUses {
		b := m.buffers[use]
		bs := BufferStats{
			ByteLength:         b.ByteLength(),
			TakenBytes:         b.TakenBytes(),
			Views:              len(b.views),
			PaddingCorrections: b.paddingCorrections,
			Version:            b.version,
		}
		for _, v := range b.views {
			bs.Accessors += len(v.accessors)
		}
		stats.TotalBytes += int64(bs.ByteLength)
		stats.TakenBytes += int64(bs.TakenBytes)
		stats.Views += bs.Views
		stats.Accessors += bs.Accessors
		stats.PaddingCorrections += bs.PaddingCorrections
		stats.BufferStats[use] = bs
	}
	return stats
}

// PrintStats outputs arena statistics with visual bars.
func (m *Manager) PrintStats() {
	stats := m.Stats()

	util := 0.0
	if stats.TotalBytes > 0 {
		util = float64(stats.TakenBytes) / float64(stats.TotalBytes)
	}

	memoryLogger.Println("===== Memory Manager Stats =====")
	memoryLogger.Printf("%.1f%% taken (%s/%s), %d views, %d accessors, %d padding corrections",
		util*100,
		formatNumber(stats.TakenBytes),
		formatNumber(stats.TotalBytes),
		stats.Views,
		stats.Accessors,
		stats.PaddingCorrections,
	)
	for _, use := range BufferUses {
		bs := stats.BufferStats[use]
		bufferUtil := 0.0
		if bs.ByteLength > 0 {
			bufferUtil = float64(bs.TakenBytes) / float64(bs.ByteLength)
		}
		memoryLogger.Printf("  [%12s] %s %.1f%% taken (%s/%s), %d views, %d accessors, v%d",
			use.String(),
			makeUtilizationBar(bufferUtil, 12),
			bufferUtil*100,
			formatNumber(int64(bs.TakenBytes)),
			formatNumber(int64(bs.ByteLength)),
			bs.Views,
			bs.Accessors,
			bs.Version,
		)
	}
	memoryLogger.Println("================================")
}

// makeUtilizationBar creates a visual bar for utilization percentage.
func makeUtilizationBar(utilization float64, width int) string {
	if utilization < 0 {
		utilization = 0
	}
	if utilization > 1 {
		utilization = 1
	}

	filled := int(utilization * float64(width))
	empty := width - filled

	bar := strings.Repeat("█", filled) + strings.Repeat("░", empty)
	return bar
}

// formatNumber formats large numbers with K/M suffixes for readability.
func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000.0)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000.0)
}
