// Package local implements dabgent.Sandbox over a plain directory on the
// local filesystem, running commands with os/exec. It is the reference
// backend used by the example wiring and by tests; it is not meant to
// isolate untrusted code the way a real container sandbox would.
package local

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/dabgent/dabgent"
)

// Sandbox is a dabgent.Sandbox rooted at a single directory on disk.
type Sandbox struct {
	root string
}

// New returns a Sandbox rooted at root, which must already exist.
func New(root string) *Sandbox {
	return &Sandbox{root: root}
}

// Root reports the directory this sandbox is rooted at.
func (s *Sandbox) Root() string { return s.root }

func (s *Sandbox) resolve(path string) (string, error) {
	cleaned := filepath.Clean("/" + path) // force-anchor: "../" cannot climb above root
	full := filepath.Join(s.root, cleaned)
	return full, nil
}

func (s *Sandbox) Exec(ctx context.Context, cmd []string, workdir string) (dabgent.ExecResult, error) {
	if len(cmd) == 0 {
		return dabgent.ExecResult{}, &dabgent.ToolArgumentError{Tool: "exec", Message: "empty command"}
	}
	dir := s.root
	if workdir != "" {
		resolved, err := s.resolve(workdir)
		if err != nil {
			return dabgent.ExecResult{}, err
		}
		dir = resolved
	}

	c := exec.CommandContext(ctx, cmd[0], cmd[1:]...)
	c.Dir = dir
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	result := dabgent.ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if exitErr, ok := err.(*exec.ExitError); ok {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	if err != nil {
		return result, err
	}
	return result, nil
}

func (s *Sandbox) ReadFile(ctx context.Context, path string) ([]byte, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

func (s *Sandbox) WriteFile(ctx context.Context, path string, data []byte) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0o640)
}

func (s *Sandbox) DeleteFile(ctx context.Context, path string) error {
	full, err := s.resolve(path)
	if err != nil {
		return err
	}
	return os.Remove(full)
}

func (s *Sandbox) ListDirectory(ctx context.Context, path string) ([]dabgent.DirEntry, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, err
	}
	out := make([]dabgent.DirEntry, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, dabgent.DirEntry{Name: e.Name(), IsDir: e.IsDir(), Size: info.Size()})
	}
	return out, nil
}

// Fork copies the sandbox's entire directory tree into a new temp directory
// and returns a Sandbox rooted there. Mutations to the fork never touch the
// original, satisfying dabgent.Sandbox's Fork contract without a real
// copy-on-write filesystem.
func (s *Sandbox) Fork(ctx context.Context) (dabgent.Sandbox, error) {
	dst, err := os.MkdirTemp("", "dabgent-sandbox-fork-*")
	if err != nil {
		return nil, err
	}
	if err := copyTree(s.root, dst); err != nil {
		os.RemoveAll(dst)
		return nil, err
	}
	return New(dst), nil
}

// Close removes the sandbox's backing directory. Idempotent.
func (s *Sandbox) Close(ctx context.Context) error {
	err := os.RemoveAll(s.root)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			return err
		}
		defer out.Close()
		_, err = io.Copy(out, in)
		return err
	})
}
