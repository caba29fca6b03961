package recorder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Permission is the microphone consent state.
type Permission string

const (
	PermissionGranted      Permission = "granted"
	PermissionDenied       Permission = "denied"
	PermissionUndetermined Permission = "undetermined"
)

// PermissionProvider answers whether the microphone may be used.
type PermissionProvider interface {
	Check(ctx context.Context) (Permission, error)
	Request(ctx context.Context) (Permission, error)
}

// StaticPermissions always answers the same way.
type StaticPermissions struct {
	Granted bool
}

func (p StaticPermissions) Check(context.Context) (Permission, error) {
	return p.answer(), nil
}

func (p StaticPermissions) Request(context.Context) (Permission, error) {
	return p.answer(), nil
}

func (p StaticPermissions) answer() Permission {
	if p.Granted {
		return PermissionGranted
	}
	return PermissionDenied
}

// PromptPermissions asks on a terminal and remembers the answer for the
// lifetime of the process.
type PromptPermissions struct {
	in  *bufio.Reader
	out io.Writer

	mu     sync.Mutex
	answer Permission
}

// NewPromptPermissions creates a provider that prompts on out and reads from in.
func NewPromptPermissions(in io.Reader, out io.Writer) *PromptPermissions {
	return &PromptPermissions{
		in:     bufio.NewReader(in),
		out:    out,
		answer: PermissionUndetermined,
	}
}

func (p *PromptPermissions) Check(context.Context) (Permission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.answer, nil
}

func (p *PromptPermissions) Request(ctx context.Context) (Permission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.answer != PermissionUndetermined {
		return p.answer, nil
	}

	fmt.Fprint(p.out, "Allow speechcoach to use the microphone? [y/N]: ")

	type result struct {
		line string
		err  error
	}
	read := make(chan result, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		read <- result{line, err}
	}()

	var res result
	select {
	case res = <-read:
	case <-ctx.Done():
		return PermissionUndetermined, ctx.Err()
	}
	if res.err != nil && res.err != io.EOF {
		return PermissionUndetermined, res.err
	}

	switch strings.ToLower(strings.TrimSpace(res.line)) {
	case "y", "yes":
		p.answer = PermissionGranted
	default:
		p.answer = PermissionDenied
	}
	return p.answer, nil
}

// FilePermissions persists consent in a file so it survives restarts. When no
// decision is stored, Request defers to Fallback and records its answer.
type FilePermissions struct {
	path     string
	fallback PermissionProvider
	logger   *logrus.Logger

	mu sync.Mutex
}

// NewFilePermissions creates a file-backed provider. fallback may be nil, in
// which case an undetermined request is denied.
func NewFilePermissions(path string, fallback PermissionProvider, logger *logrus.Logger) *FilePermissions {
	return &FilePermissions{path: path, fallback: fallback, logger: logger}
}

func (p *FilePermissions) Check(context.Context) (Permission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.read()
}

func (p *FilePermissions) Request(ctx context.Context) (Permission, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored, err := p.read()
	if err != nil {
		return PermissionUndetermined, err
	}
	if stored != PermissionUndetermined {
		return stored, nil
	}

	if p.fallback == nil {
		p.logger.WithField("path", p.path).Warn("No stored microphone consent; run 'speechcoach permission grant'")
		return PermissionDenied, nil
	}

	answer, err := p.fallback.Request(ctx)
	if err != nil {
		return PermissionUndetermined, err
	}
	if err := p.write(answer); err != nil {
		p.logger.WithError(err).Warn("Failed to persist microphone consent")
	}
	return answer, nil
}

// Set stores a decision explicitly.
func (p *FilePermissions) Set(answer Permission) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.write(answer)
}

// Clear forgets any stored decision.
func (p *FilePermissions) Clear() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (p *FilePermissions) read() (Permission, error) {
	data, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return PermissionUndetermined, nil
	}
	if err != nil {
		return PermissionUndetermined, fmt.Errorf("read consent file: %w", err)
	}

	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return PermissionUndetermined, nil
	}
	switch Permission(fields[0]) {
	case PermissionGranted:
		return PermissionGranted, nil
	case PermissionDenied:
		return PermissionDenied, nil
	default:
		return PermissionUndetermined, nil
	}
}

func (p *FilePermissions) write(answer Permission) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0755); err != nil {
		return err
	}
	line := fmt.Sprintf("%s %s\n", answer, time.Now().UTC().Format(time.RFC3339))
	return os.WriteFile(p.path, []byte(line), 0600)
}
