package config

import (
	"os"
	"path/filepath"
)

// FindProjectRoot looks for the .hatloop directory starting from the
// current working directory and moving up the directory tree. If none
// is found the current directory becomes the project root.
func FindProjectRoot() (string, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := currentDir
	for {
		if _, err := os.Stat(filepath.Join(dir, ".hatloop")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return currentDir, nil
}

// GetHatloopDir returns the .hatloop directory for a project root.
func GetHatloopDir(projectRoot string) string {
	return filepath.Join(projectRoot, ".hatloop")
}

// EnsureHatloopDirs creates the .hatloop subdirectories used at runtime.
func EnsureHatloopDirs(hatloopDir string) error {
	subdirs := []string{
		filepath.Join(hatloopDir, "logs"),
		filepath.Join(hatloopDir, "run"),
		filepath.Join(hatloopDir, "store"),
	}
	for _, subdir := range subdirs {
		if err := os.MkdirAll(subdir, 0755); err != nil {
			return err
		}
	}
	return nil
}
