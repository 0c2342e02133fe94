package gpu

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoContext is returned by GPU operations attempted before a backend
	// (and therefore a context) has been registered.
	ErrNoContext = errors.New("gpu: no context registered")
	// ErrContextAlreadyRegistered guards against swapping contexts mid-run.
	ErrContextAlreadyRegistered = errors.New("gpu: context already registered")
)

// Registry holds the backend of the current GL context. A world owns one.
type Registry struct {
	backend Backend
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register installs the backend for the current context.
func (r *Registry) Register(b Backend) error {
	if b == nil {
		return fmt.Errorf("gpu: nil backend")
	}
	if r.backend != nil && r.backend != b {
		return ErrContextAlreadyRegistered
	}
	r.backend = b
	return nil
}

// Current returns the registered backend or ErrNoContext.
func (r *Registry) Current() (Backend, error) {
	if r == nil || r.backend == nil {
		return nil, ErrNoContext
	}
	return r.backend, nil
}

// ShaderError reports a failed shader compilation or program link. The
// message carries the source with line numbers so driver log positions can
// be matched up.
type ShaderError struct {
	Stage  string // "vertex", "fragment" or "link"
	Log    string
	Source string
}

func (e *ShaderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "gpu: %s shader failed: %s", e.Stage, strings.TrimRight(strings.TrimSpace(e.Log), "\x00"))
	if e.Source != "" {
		b.WriteString("\n")
		b.WriteString(NumberedSource(e.Source))
	}
	return b.String()
}

// NumberedSource prefixes every line of src with its 1-based line number.
func NumberedSource(src string) string {
	src = strings.TrimRight(src, "\x00")
	lines := strings.Split(src, "\n")
	width := len(fmt.Sprint(len(lines)))
	var b strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&b, "%*d: %s\n", width, i+1, line)
	}
	return b.String()
}
