package ffmpeg

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Locate resolves the path of an external tool. Resolution order: explicit
// override from configuration, a sidecar binary shipped next to the agent
// executable, then $PATH.
func Locate(name, override string) (string, error) {
	if override != "" {
		if isExecutable(override) {
			return override, nil
		}
		if p, err := exec.LookPath(override); err == nil {
			return p, nil
		}
		return "", &SpawnError{Bin: override, Err: fmt.Errorf("configured path is not an executable")}
	}

	if exe, err := os.Executable(); err == nil {
		sidecar := filepath.Join(filepath.Dir(exe), sidecarName(name))
		if isExecutable(sidecar) {
			return sidecar, nil
		}
	}

	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	return "", &SpawnError{Bin: name, Err: exec.ErrNotFound}
}

func sidecarName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0o111 != 0
}
