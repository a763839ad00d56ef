package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace captures canonical locations for a reelforge render workspace.
type Workspace struct {
	Root         string
	ConfigFile   string
	TemplateFile string
	ContentFile  string
	MediaDir     string
	SegmentsDir  string
	LogsDir      string
	TempDir      string
	LockFile     string
	OutputFile   string
}

// Resolve determines the workspace root using the optional --workspace flag
// or the current working directory when the flag is empty.
func Resolve(workspaceFlag string) (Workspace, error) {
	var (
		root string
		err  error
	)

	if workspaceFlag != "" {
		root, err = filepath.Abs(workspaceFlag)
	} else {
		root, err = os.Getwd()
	}
	if err != nil {
		return Workspace{}, fmt.Errorf("resolve workspace root: %w", err)
	}

	return New(root), nil
}

// New builds workspace paths rooted at root.
func New(root string) Workspace {
	metaDir := filepath.Join(root, ".reelforge")
	return Workspace{
		Root:         root,
		ConfigFile:   filepath.Join(root, "reelforge.yaml"),
		TemplateFile: filepath.Join(root, "template.yaml"),
		ContentFile:  filepath.Join(root, "content.yaml"),
		MediaDir:     filepath.Join(root, "media"),
		SegmentsDir:  filepath.Join(metaDir, "segments"),
		LogsDir:      filepath.Join(metaDir, "logs"),
		TempDir:      filepath.Join(metaDir, "tmp"),
		LockFile:     filepath.Join(metaDir, "render.lock"),
		OutputFile:   filepath.Join(root, "reel.mp4"),
	}
}

// EnsureDirs creates every directory a render touches.
func (w Workspace) EnsureDirs() error {
	for _, dir := range []string{w.SegmentsDir, w.LogsDir, w.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure dir %s: %w", dir, err)
		}
	}
	return nil
}

// CleanTemp removes every transient render file: staged media and stitch
// scratch under the temp dir, plus any leftover segment clips.
func (w Workspace) CleanTemp() error {
	for _, dir := range []string{w.TempDir, w.SegmentsDir} {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("clean %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("recreate %s: %w", dir, err)
		}
	}
	return nil
}

// FileExists reports whether path exists and is a regular file.
func FileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}
