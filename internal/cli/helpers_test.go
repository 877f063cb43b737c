package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	alice = "!aaaa0001"
	bob   = "!bbbb0002"
)

// writeConfig writes a config with a fresh database followed by extra YAML
// lines.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "nodeice.yaml")
	content := "database: " + filepath.Join(dir, "board.db") + "\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
