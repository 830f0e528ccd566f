package loader

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/vk/dynplug/abi"
	"github.com/vk/dynplug/plugerr"
)

// BuiltinPrefix marks paths served by a StaticOpener.
const BuiltinPrefix = "builtin:"

// Library is one mapped library.
type Library interface {
	// Lookup resolves an exported symbol.
	Lookup(symbol string) (any, error)
	// Close releases the mapping. The loader calls it exactly once.
	Close() error
}

// Opener maps libraries by path.
type Opener interface {
	Open(ctx context.Context, path string) (Library, error)
}

// OpenerFunc adapts a function to an Opener.
type OpenerFunc func(ctx context.Context, path string) (Library, error)

func (f OpenerFunc) Open(ctx context.Context, path string) (Library, error) { return f(ctx, path) }

// StaticOpener serves declarations linked into the host binary under
// "builtin:<name>" paths. It counts opens and closes per path.
type StaticOpener struct {
	mu     sync.Mutex
	decls  map[string]*abi.Declaration
	opens  map[string]int
	closes map[string]int
}

// NewStaticOpener creates an empty table.
func NewStaticOpener() *StaticOpener {
	return &StaticOpener{
		decls:  make(map[string]*abi.Declaration),
		opens:  make(map[string]int),
		closes: make(map[string]int),
	}
}

// Add registers d under "builtin:<name>". It panics on duplicates.
func (s *StaticOpener) Add(name string, d *abi.Declaration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := BuiltinPrefix + name
	if _, exists := s.decls[path]; exists {
		panic(fmt.Sprintf("builtin library '%s' is already registered", name))
	}
	s.decls[path] = d
}

// Paths returns the registered paths, sorted.
func (s *StaticOpener) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.decls))
	for p := range s.decls {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s *StaticOpener) Open(_ context.Context, path string) (Library, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.decls[path]
	if !ok {
		return nil, plugerr.NewLoadError(path, "no builtin library registered")
	}
	s.opens[path]++
	return &staticLibrary{owner: s, path: path, decl: d}, nil
}

// Opens reports how many times path was opened.
func (s *StaticOpener) Opens(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens[path]
}

// Closes reports how many times a library opened from path was closed.
func (s *StaticOpener) Closes(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes[path]
}

// Mapped reports the libraries currently open across all paths.
func (s *StaticOpener) Mapped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for p, o := range s.opens {
		n += o - s.closes[p]
	}
	return n
}

type staticLibrary struct {
	owner  *StaticOpener
	path   string
	decl   *abi.Declaration
	closed bool
}

func (l *staticLibrary) Lookup(symbol string) (any, error) {
	if l.closed {
		return nil, fmt.Errorf("library %s is closed", l.path)
	}
	if symbol != abi.DeclarationSymbol {
		return nil, fmt.Errorf("symbol %s not found in %s", symbol, l.path)
	}
	return l.decl, nil
}

func (l *staticLibrary) Close() error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()
	if l.closed {
		return fmt.Errorf("library %s closed twice", l.path)
	}
	l.closed = true
	l.owner.closes[l.path]++
	return nil
}

// Mux routes "builtin:" paths to Static and every other path to Files.
type Mux struct {
	Static *StaticOpener
	Files  Opener
}

func (m Mux) Open(ctx context.Context, path string) (Library, error) {
	if strings.HasPrefix(path, BuiltinPrefix) {
		if m.Static == nil {
			return nil, plugerr.NewLoadError(path, "builtin libraries are not available")
		}
		return m.Static.Open(ctx, path)
	}
	if m.Files == nil {
		return nil, plugerr.NewLoadError(path, "no opener for library files")
	}
	return m.Files.Open(ctx, path)
}

// declaration resolves and type-checks the exported declaration.
func declaration(path string, lib Library) (*abi.Declaration, error) {
	sym, err := lib.Lookup(abi.DeclarationSymbol)
	if err != nil {
		return nil, &plugerr.LoadError{Path: path, Err: err}
	}
	switch d := sym.(type) {
	case *abi.Declaration:
		return d, nil
	case **abi.Declaration:
		// plugin.Lookup returns a pointer to exported variables.
		if d == nil {
			return nil, plugerr.NewLoadError(path, "symbol %s is nil", abi.DeclarationSymbol)
		}
		return *d, nil
	}
	return nil, plugerr.NewLoadError(path, "symbol %s has type %T, want *abi.Declaration", abi.DeclarationSymbol, sym)
}
