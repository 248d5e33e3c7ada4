package pipeline

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/lmejias/vidsift/pkg/logging"
)

// Cleaner removes the scratch artifacts one job leaves behind: the segment
// clip directory and any sampled-frame directories tagged with the job UUID.
// Sweeping is best effort; a failed removal is logged, never fatal.
type Cleaner struct {
	outputDir  string
	scratchDir string
	logger     *logging.Logger
}

// NewCleaner creates a Cleaner
func NewCleaner(outputDir, scratchDir string, logger *logging.Logger) *Cleaner {
	return &Cleaner{outputDir: outputDir, scratchDir: scratchDir, logger: logger}
}

// Sweep deletes every artifact belonging to the given job UUID
func (c *Cleaner) Sweep(jobID string) {
	if jobID == "" {
		return
	}

	segmentDir := filepath.Join(c.outputDir, jobID)
	if err := os.RemoveAll(segmentDir); err != nil {
		c.logger.Warn("failed to remove segment directory", map[string]interface{}{
			"job":   jobID,
			"dir":   segmentDir,
			"error": err.Error(),
		})
	}

	entries, err := os.ReadDir(c.scratchDir)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("failed to read scratch directory", map[string]interface{}{
				"dir":   c.scratchDir,
				"error": err.Error(),
			})
		}
		return
	}

	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), jobID) {
			continue
		}
		path := filepath.Join(c.scratchDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			c.logger.Warn("failed to remove scratch artifact", map[string]interface{}{
				"job":   jobID,
				"path":  path,
				"error": err.Error(),
			})
		}
	}
}
