// Package config holds the process-wide, read-only configuration that
// replaces the source engine's static ParameterInteger/ParameterString/
// ParameterBoolean registry (see DESIGN NOTES in SPEC_FULL.md). A
// Config is loaded once at process start and never mutated; tests
// install a scoped override instead of touching global state directly.
package config

import (
	"flag"
	"sync/atomic"
	"testing"
)

// Config is the full set of tunables the engine reads at runtime.
type Config struct {
	// PageCache
	CacheCount int // default number of clean pages retained after flush

	// PagedFile
	FileMaxSize       int64 // DefaultFileMaxSize
	FileExtensionSize int64 // DefaultFileExtensionSize

	// FileID / Hints
	LeafPageSizeKB     int
	OverflowPageSizeKB int
	BtreePageSizeKB    int
	OtherPageSizeKB    int
	PhysicalMinPageKB  int

	// DelayedMerge
	MergeWorkers int

	// KwicEngine
	KwicExpandLimit int // Utility_KwicExpandLimit, default 16
}

// Default returns the engine's out-of-the-box configuration.
func Default() Config {
	return Config{
		CacheCount:         10,
		FileMaxSize:        1 << 30,
		FileExtensionSize:  1 << 20,
		LeafPageSizeKB:     16,
		OverflowPageSizeKB: 16,
		BtreePageSizeKB:    16,
		OtherPageSizeKB:    4,
		PhysicalMinPageKB:  4,
		MergeWorkers:       4,
		KwicExpandLimit:    16,
	}
}

var current atomic.Value // holds Config

func init() {
	current.Store(Default())
}

// Flags registers command-line flags for every tunable onto fs, returning
// a Config populated by fs.Parse. Mirrors the teacher's flag-based
// cmd/treestore/main.go startup.
func Flags(fs *flag.FlagSet) *Config {
	cfg := Default()
	fs.IntVar(&cfg.CacheCount, "cache-count", cfg.CacheCount, "clean pages retained per file after flush")
	fs.Int64Var(&cfg.FileMaxSize, "file-max-size", cfg.FileMaxSize, "paged file max size in bytes")
	fs.Int64Var(&cfg.FileExtensionSize, "file-extension-size", cfg.FileExtensionSize, "paged file extension size in bytes")
	fs.IntVar(&cfg.LeafPageSizeKB, "leaf-page-size-kb", cfg.LeafPageSizeKB, "leaf sub-file page size in KiB")
	fs.IntVar(&cfg.OverflowPageSizeKB, "overflow-page-size-kb", cfg.OverflowPageSizeKB, "overflow sub-file page size in KiB")
	fs.IntVar(&cfg.BtreePageSizeKB, "btree-page-size-kb", cfg.BtreePageSizeKB, "btree sub-file page size in KiB")
	fs.IntVar(&cfg.OtherPageSizeKB, "other-page-size-kb", cfg.OtherPageSizeKB, "other sub-file page size in KiB")
	fs.IntVar(&cfg.MergeWorkers, "merge-workers", cfg.MergeWorkers, "delayed-merge worker pool size")
	fs.IntVar(&cfg.KwicExpandLimit, "kwic-expand-limit", cfg.KwicExpandLimit, "max morphological expansions per search term")
	return &cfg
}

// Set installs cfg as the process-wide configuration. Call once at
// startup before any component reads Get.
func Set(cfg Config) { current.Store(cfg) }

// Get returns the current process-wide configuration.
func Get() Config { return current.Load().(Config) }

// WithOverride installs cfg for the duration of a test and restores the
// previous value on cleanup.
func WithOverride(t *testing.T, cfg Config) {
	t.Helper()
	prev := Get()
	Set(cfg)
	t.Cleanup(func() { Set(prev) })
}

// ClampPageSizeKB rounds a requested page size (KiB) up to the
// configured physical minimum, per spec invariant 6 on FileId.
func ClampPageSizeKB(requestedKB, physicalMinKB int) int {
	if requestedKB < physicalMinKB {
		return physicalMinKB
	}
	return requestedKB
}
