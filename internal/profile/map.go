package profile

import (
	"sort"
	"sync"
)

// Logger records resolution diagnostics. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Map groups tagged variants by logical path and tag. It is updated one file
// at a time as the watcher reports additions and removals.
type Map struct {
	logger Logger

	mu       sync.RWMutex
	variants map[string]map[string]map[string]struct{}
	infos    map[string]Info
	plain    map[string]map[string]struct{}
}

// Option customizes a Map.
type Option func(*Map)

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(m *Map) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMap returns an empty map.
func NewMap(opts ...Option) *Map {
	m := &Map{
		logger:   nopLogger{},
		variants: map[string]map[string]map[string]struct{}{},
		infos:    map[string]Info{},
		plain:    map[string]map[string]struct{}{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Add parses p and records it.
func (m *Map) Add(p string) Info {
	info := Parse(p)
	m.AddInfo(info)
	return info
}

// AddInfo records a parsed file. Re-adding a path replaces its previous entry.
func (m *Map) AddInfo(info Info) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.infos[info.PhysicalPath]; ok {
		m.removeLocked(info.PhysicalPath)
	}
	m.infos[info.PhysicalPath] = info
	if !info.Tagged() {
		addToSet(m.plain, info.LogicalPath, info.PhysicalPath)
		return
	}
	byTag, ok := m.variants[info.LogicalPath]
	if !ok {
		byTag = map[string]map[string]struct{}{}
		m.variants[info.LogicalPath] = byTag
	}
	for _, tag := range info.Tags {
		addToSet(byTag, tag, info.PhysicalPath)
	}
}

// Remove forgets the file at p. It reports whether the file was known.
func (m *Map) Remove(p string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(NormalizePath(p))
}

func (m *Map) removeLocked(physical string) bool {
	info, ok := m.infos[physical]
	if !ok {
		return false
	}
	delete(m.infos, physical)
	if !info.Tagged() {
		removeFromSet(m.plain, info.LogicalPath, physical)
		return true
	}
	byTag := m.variants[info.LogicalPath]
	for _, tag := range info.Tags {
		removeFromSet(byTag, tag, physical)
	}
	if len(byTag) == 0 {
		delete(m.variants, info.LogicalPath)
	}
	return true
}

// Info returns the parsed entry for a physical path.
func (m *Map) Info(p string) (Info, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.infos[NormalizePath(p)]
	return info, ok
}

// Len returns the number of tracked files.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.infos)
}

// LogicalPaths returns every logical path that has at least one tagged variant.
func (m *Map) LogicalPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.variants))
	for logical := range m.variants {
		out = append(out, logical)
	}
	sort.Strings(out)
	return out
}

// Candidates returns the physical paths claiming tag for logical, sorted.
func (m *Map) Candidates(logical, tag string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedSet(m.variants[logical][tag])
}

func addToSet(m map[string]map[string]struct{}, key, value string) {
	set, ok := m[key]
	if !ok {
		set = map[string]struct{}{}
		m[key] = set
	}
	set[value] = struct{}{}
}

func removeFromSet(m map[string]map[string]struct{}, key, value string) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, value)
	if len(set) == 0 {
		delete(m, key)
	}
}

func sortedSet(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
