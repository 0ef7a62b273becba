package clipboard

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

var (
	ErrToolNotFound  = errors.New("clipboard tool not found")
	ErrNothingToCopy = errors.New("nothing to copy")
)

type Command struct {
	Path string
	Args []string
}

type candidate struct {
	name string
	args []string
}

var unixCandidates = []candidate{
	{name: "wl-copy"},
	{name: "xclip", args: []string{"-selection", "clipboard"}},
	{name: "xsel", args: []string{"--clipboard", "--input"}},
}

var candidates = map[string][]candidate{
	"darwin":  {{name: "pbcopy"}},
	"linux":   unixCandidates,
	"freebsd": unixCandidates,
	"openbsd": unixCandidates,
	"windows": {{name: "clip.exe"}},
}

// SelectCommand picks the first available tool for goos, in preference order.
func SelectCommand(goos string, lookPath func(string) (string, error)) (Command, error) {
	for _, c := range candidates[goos] {
		if path, err := lookPath(c.name); err == nil {
			return Command{Path: path, Args: append([]string(nil), c.args...)}, nil
		}
	}
	return Command{}, ErrToolNotFound
}

type Copier struct {
	goos     string
	lookPath func(string) (string, error)
	run      func(ctx context.Context, cmd Command, text string) error
}

func New() *Copier {
	return &Copier{goos: runtime.GOOS, lookPath: exec.LookPath, run: runCommand}
}

func (c *Copier) Copy(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrNothingToCopy
	}
	cmd, err := SelectCommand(c.goos, c.lookPath)
	if err != nil {
		return err
	}
	return c.run(ctx, cmd, text)
}

func Copy(ctx context.Context, text string) error {
	return New().Copy(ctx, text)
}

func runCommand(ctx context.Context, def Command, text string) error {
	cmd := exec.CommandContext(ctx, def.Path, def.Args...)
	cmd.Stdin = strings.NewReader(text)
	if out, err := cmd.CombinedOutput(); err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return fmt.Errorf("clipboard command failed: %w", err)
		}
		return fmt.Errorf("clipboard command failed: %w: %s", err, msg)
	}
	return nil
}
