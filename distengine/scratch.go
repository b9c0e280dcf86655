package distengine

import (
	"fmt"
	"os"

	"github.com/docling-project/docling-task-orchestrator/corelog"
)

// allocScratchDir creates a fresh, exclusively-owned working directory
// for taskID under the OS temp dir. Returns "" (not an error) if
// allocation fails: a scratch directory is a convenience the pipeline
// may use, not a prerequisite for processing a task.
func allocScratchDir(taskID string, logger corelog.Logger) string {
	dir, err := os.MkdirTemp("", fmt.Sprintf("docling-task-%s-", taskID))
	if err != nil {
		if logger != nil {
			logger.Warn("failed to allocate scratch dir", map[string]interface{}{
				"task_id": taskID,
				"error":   err.Error(),
			})
		}
		return ""
	}
	return dir
}

// removeScratchDir removes a task's scratch directory if one was
// assigned. Scratch directories are owned exclusively by their task
// and must be gone no later than final task eviction.
func removeScratchDir(dir string, logger corelog.Logger) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil && logger != nil {
		logger.Warn("failed to remove scratch dir", map[string]interface{}{
			"scratch_dir": dir,
			"error":       err.Error(),
		})
	}
}
