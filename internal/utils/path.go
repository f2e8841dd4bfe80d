package utils

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"
)

// PathResolver finds shard directories relative to the running binary.
type PathResolver struct {
	executablePath string
	executableDir  string
	homeDir        string
	configDir      string
}

// NewPathResolver creates a resolver anchored at the current executable.
func NewPathResolver() (*PathResolver, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, err
	}
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return nil, err
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Warnf("Could not determine home directory: %v", err)
		homeDir = os.TempDir()
	}

	pr := &PathResolver{
		executablePath: execPath,
		executableDir:  filepath.Dir(execPath),
		homeDir:        homeDir,
		configDir:      platformConfigDir(homeDir),
	}
	log.Debugf("PathResolver initialized: exec=%s, configDir=%s", execPath, pr.configDir)
	return pr, nil
}

func platformConfigDir(homeDir string) string {
	switch runtime.GOOS {
	case "linux":
		if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
			return filepath.Join(configHome, "docserve")
		}
		return filepath.Join(homeDir, ".config", "docserve")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "docserve")
		}
		return filepath.Join(homeDir, "AppData", "Roaming", "docserve")
	default:
		return filepath.Join(homeDir, ".config", "docserve")
	}
}

// GetDataDir resolves the directory holding shard files named by pattern.
// Candidates, in order:
// 1. the path itself when absolute
// 2. relative to the executable
// 3. relative to the working directory
// 4. a "data" dir next to the executable, its parent, or the config dir
//
// When nothing matches, the path relative to the working directory is
// returned so the caller can report it.
func (pr *PathResolver) GetDataDir(userPath, pattern string) string {
	candidates := pr.dataDirCandidates(userPath)
	for _, path := range candidates {
		if IsShardDir(path, pattern) {
			log.Debugf("Found shard directory: %s", path)
			return path
		}
		log.Debugf("Shard directory candidate not valid: %s", path)
	}
	if filepath.IsAbs(userPath) {
		return userPath
	}
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, userPath)
	}
	return userPath
}

func (pr *PathResolver) dataDirCandidates(userPath string) []string {
	if filepath.IsAbs(userPath) {
		return []string{userPath}
	}
	candidates := []string{filepath.Join(pr.executableDir, userPath)}
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, userPath))
	}
	return append(candidates,
		filepath.Join(pr.executableDir, "data"),
		filepath.Join(filepath.Dir(pr.executableDir), "data"),
		filepath.Join(pr.configDir, "data"),
	)
}

// IsShardDir reports whether dir holds at least one file matching pattern,
// with "{key}" standing for any shard key.
func IsShardDir(dir, pattern string) bool {
	if stat, err := os.Stat(dir); err != nil || !stat.IsDir() {
		return false
	}
	glob := strings.ReplaceAll(pattern, "{key}", "*")
	if !strings.Contains(glob, "*") {
		glob = "*" + glob
	}
	matches, err := filepath.Glob(filepath.Join(dir, glob))
	return err == nil && len(matches) > 0
}

// GetConfigDir returns the platform config directory.
func (pr *PathResolver) GetConfigDir() string {
	return pr.configDir
}

// ResolveRelativePath resolves a path relative to the executable directory
func (pr *PathResolver) ResolveRelativePath(relativePath string) string {
	if filepath.IsAbs(relativePath) {
		return relativePath
	}
	return filepath.Join(pr.executableDir, relativePath)
}
