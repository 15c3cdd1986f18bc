package fs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// MinWatchLimit is the inotify watch limit below which subtree
// observation is likely to run out of watches.
const MinWatchLimit = 8192

var watchLimitPath = "/proc/sys/fs/inotify/max_user_watches"

func watchLimitWarnings() []string {
	data, err := os.ReadFile(watchLimitPath)
	if err != nil {
		return nil
	}
	limit, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || limit >= MinWatchLimit {
		return nil
	}
	return []string{fmt.Sprintf("inotify max_user_watches is %d; subtree observation may fail to watch every directory", limit)}
}
