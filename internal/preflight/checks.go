package preflight

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"stemforge/internal/config"
	"stemforge/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies that the filesystem holding path has at least need bytes available.
func CheckFreeSpace(name, path string, need int64) Result {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	avail := int64(st.Bavail) * int64(st.Bsize)
	if avail < need {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %s free, %s needed)", path, formatBytes(avail), formatBytes(need))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s free)", path, formatBytes(avail))}
}

// CheckSystemDeps evaluates the external tools named by cfg.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(deps.Requirements(cfg))
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
