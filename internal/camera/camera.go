// Package camera takes still photos through the Raspberry Pi camera
// stack. The vision question itself is the camera handler's business;
// this is only the capture leaf.
package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Camera captures one still and returns the file path.
type Camera interface {
	Capture(ctx context.Context) (string, error)
}

// Still shells out to rpicam-still (or a configured equivalent).
type Still struct {
	Command string // default "rpicam-still"
	Dir     string // default os.TempDir()
}

func (s *Still) Capture(ctx context.Context) (string, error) {
	cmd := s.Command
	if cmd == "" {
		cmd = "rpicam-still"
	}
	dir := s.Dir
	if dir == "" {
		dir = os.TempDir()
	}

	path := filepath.Join(dir, fmt.Sprintf("necklace-%d.jpg", time.Now().UnixNano()))
	c := exec.CommandContext(ctx, cmd, "-o", path, "--nopreview", "-t", "800", "--width", "1280", "--height", "960")
	if out, err := c.CombinedOutput(); err != nil {
		return "", fmt.Errorf("%s: %w (%s)", cmd, err, string(out))
	}
	return path, nil
}
