// Package util provides small shared helpers.
package util

import (
	"fmt"
	"os"
	"os/exec"
)

// FindBinary locates an external tool. Search order:
//  1. explicit path (from config), used verbatim when executable
//  2. environment variable override
//  3. current directory
//  4. PATH
func FindBinary(name, explicitPath, envVar string) (string, error) {
	if explicitPath != "" {
		if isExecutable(explicitPath) {
			return explicitPath, nil
		}
		return "", fmt.Errorf("configured path for %s is not executable: %s", name, explicitPath)
	}

	if envVar != "" {
		if envPath := os.Getenv(envVar); envPath != "" && isExecutable(envPath) {
			return envPath, nil
		}
	}

	if localPath := "./" + name; isExecutable(localPath) {
		return localPath, nil
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("binary %s not found", name)
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0111 != 0
}
