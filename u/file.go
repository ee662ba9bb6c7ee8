package u

import (
	"os"
	"strings"
)

// PathExists returns true if path exists
func PathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// FileSize gets file size, -1 if file doesn't exist
func FileSize(path string) int64 {
	st, err := os.Lstat(path)
	if err == nil {
		return st.Size()
	}
	return -1
}

// ExpandTildeInPath replaces leading ~ with user's home directory
func ExpandTildeInPath(s string) string {
	if !strings.HasPrefix(s, "~") {
		return s
	}
	dir, err := os.UserHomeDir()
	if err != nil {
		return s
	}
	return dir + s[1:]
}
