// Package venv knows the on-disk layout of a Python virtual environment and
// how to run the executables inside one.
package venv

import (
	"os"
	"path/filepath"
)

// MarkerFile is the config file whose presence marks an environment root
const MarkerFile = "pyvenv.cfg"

// ProjectLinkFile links an environment back to the project that owns it
const ProjectLinkFile = ".project"

// Windows is the GOOS value that switches to the Scripts/ layout
const Windows = "windows"

// ScriptsDir returns the directory holding the environment's executables
func ScriptsDir(root, goos string) string {
	if goos == Windows {
		return filepath.Join(root, "Scripts")
	}
	return filepath.Join(root, "bin")
}

// PythonPath returns the expected interpreter location inside root
func PythonPath(root, goos string) string {
	return filepath.Join(ScriptsDir(root, goos), exeName("python", goos))
}

// PipPath returns the pip executable that sits next to the given interpreter
func PipPath(python, goos string) string {
	return filepath.Join(filepath.Dir(python), exeName("pip", goos))
}

// ActivateScript returns the activation script for the platform's default shell
func ActivateScript(root, goos string) string {
	if goos == Windows {
		return filepath.Join(root, "Scripts", "Activate.ps1")
	}
	return filepath.Join(root, "bin", "activate")
}

// HasMarker reports whether dir contains the environment marker file
func HasMarker(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, MarkerFile))
	return err == nil && !info.IsDir()
}

// Exists reports whether path exists (file or directory)
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func exeName(name, goos string) string {
	if goos == Windows {
		return name + ".exe"
	}
	return name
}
