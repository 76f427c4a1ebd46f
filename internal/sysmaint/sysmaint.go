// Package sysmaint provides Patch's housekeeping: clearing scratch audio
// files, wiping model caches on a total reset, and warning about low disk.
package sysmaint

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
)

// Cleaner performs the maintenance operations.
type Cleaner struct {
	scratchDir string
	cachePaths []string
	minFreeGB  uint64
	logger     zerolog.Logger
}

// New creates a Cleaner. scratchDir is scanned for stray audio files;
// cachePaths are the directories a total reset deletes.
func New(scratchDir string, cachePaths []string, minFreeGB int, logger zerolog.Logger) *Cleaner {
	if scratchDir == "" {
		scratchDir = "."
	}
	if minFreeGB <= 0 {
		minFreeGB = 10
	}
	return &Cleaner{
		scratchDir: scratchDir,
		cachePaths: cachePaths,
		minFreeGB:  uint64(minFreeGB),
		logger:     logger.With().Str("component", "sysmaint").Logger(),
	}
}

// DeepClean removes stray .wav files from the scratch directory and returns
// the megabytes reclaimed.
func (c *Cleaner) DeepClean() float64 {
	c.logger.Info().Str("dir", c.scratchDir).Msg("Cleaning system")

	var bytesSaved int64
	entries, err := os.ReadDir(c.scratchDir)
	if err != nil {
		return 0
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".wav") {
			continue
		}
		path := filepath.Join(c.scratchDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if err := os.Remove(path); err != nil {
			continue
		}
		bytesSaved += info.Size()
	}

	mb := float64(bytesSaved) / (1024 * 1024)
	c.logger.Info().Float64("mbSaved", mb).Msg("Deep clean complete")
	return mb
}

// HardReset deletes the configured cache directories and returns the bytes
// reclaimed. Missing directories are skipped.
func (c *Cleaner) HardReset() int64 {
	c.logger.Warn().Msg("Starting storage reset")

	var total int64
	for _, path := range c.cachePaths {
		size := dirSize(path)
		if err := os.RemoveAll(path); err != nil {
			c.logger.Warn().Err(err).Str("path", path).Msg("Could not clear cache directory")
			continue
		}
		if size > 0 {
			c.logger.Info().Str("path", path).Int64("bytes", size).Msg("Cache cleared")
			total += size
		}
	}
	return total
}

// CheckDisk returns a warning sentence when free space on the data volume is
// below the threshold, or "" when all is well.
func (c *Cleaner) CheckDisk(path string) string {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return ""
	}

	freeGB := stat.Bavail * uint64(stat.Bsize) / (1 << 30)
	if freeGB < c.minFreeGB {
		c.logger.Warn().Uint64("freeGB", freeGB).Msg("Disk space low")
		return fmt.Sprintf("Warning: Storage is very low. Only %d gigabytes remaining.", freeGB)
	}
	return ""
}

func dirSize(path string) int64 {
	var size int64
	filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}
