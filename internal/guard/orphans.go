package guard

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// findOrphans returns the PIDs under procRoot whose command line contains
// any of patterns, excluding self and parent. Processes that vanish during
// the scan are skipped.
func findOrphans(procRoot string, patterns []string, self, parent int) ([]int, error) {
	entries, err := os.ReadDir(procRoot)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", procRoot, err)
	}

	var pids []int
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid == self || pid == parent {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(procRoot, e.Name(), "cmdline"))
		if err != nil || len(raw) == 0 {
			continue
		}
		cmdline := string(bytes.TrimRight(bytes.ReplaceAll(raw, []byte{0}, []byte{' '}), " "))

		if slices.ContainsFunc(patterns, func(p string) bool {
			return p != "" && strings.Contains(cmdline, p)
		}) {
			pids = append(pids, pid)
		}
	}

	slices.Sort(pids)
	return pids, nil
}
