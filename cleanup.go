package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/utilitywarehouse/git-mirror-push/mirror"
)

// orphanedWorkspaceAge is the min age of a workspace dir before it's considered
// orphaned. single update never takes this long unless process was killed.
const orphanedWorkspaceAge = 12 * time.Hour

// cleanupOrphanedWorkspaces deletes scratch workspaces left behind by runs which
// were killed before they could remove them. Only dirs with workspace prefix
// and older then olderThan are removed so workspaces of concurrently running
// processes sharing same scratch root are not touched.
// this is best effort clean up and it should be called once at start.
func cleanupOrphanedWorkspaces(root string, olderThan time.Duration) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Error("unable to read scratch root dir for clean up", "path", root, "err", err)
		}
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), mirror.WorkspacePrefix) {
			continue
		}

		fullPath := filepath.Join(root, entry.Name())

		info, err := entry.Info()
		if err != nil {
			logger.Error("unable to stat workspace dir", "path", fullPath, "err", err)
			continue
		}

		if time.Since(info.ModTime()) < olderThan {
			continue
		}

		logger.Info("removing orphaned workspace dir...", "path", fullPath)
		if err := os.RemoveAll(fullPath); err != nil {
			logger.Error("unable to remove orphaned workspace dir", "path", fullPath, "err", err)
			continue
		}
	}
}
