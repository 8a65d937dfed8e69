package store

import (
	"fmt"
	"maps"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/arloliu/loopfit/errs"
	"github.com/arloliu/loopfit/format"
	"github.com/arloliu/loopfit/internal/hash"
	"github.com/arloliu/loopfit/internal/options"
)

// DefaultPageRows is the number of table rows encoded into one compressed page.
const DefaultPageRows = 256

// object holds what groups and tables have in common.
type object struct {
	attrs map[string]any
	links map[string]string
}

func newObject() object {
	return object{attrs: make(map[string]any), links: make(map[string]string)}
}

type table struct {
	object
	id     uint64
	layout format.Layout
	rows   int
	cols   int
	data   []float32
}

// Store is an in-memory hierarchical table store. It is safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	groups      map[string]*object
	tables      map[string]*table
	compression format.CompressionType
	pageRows    int
	bigEndian   bool
}

// Option configures a Store.
type Option = options.Option[*Store]

// WithCompression sets the page codec used by Save. The default is zstd.
func WithCompression(ct format.CompressionType) Option {
	return options.New(func(s *Store) error {
		if ct.String() == "Unknown" {
			return fmt.Errorf("%w: unknown compression type %d", errs.ErrInvalidConfig, ct)
		}
		s.compression = ct

		return nil
	})
}

// WithPageRows sets the number of rows per page written by Save.
func WithPageRows(rows int) Option {
	return options.New(func(s *Store) error {
		if rows < 1 {
			return fmt.Errorf("%w: page rows must be positive, got %d", errs.ErrInvalidConfig, rows)
		}
		s.pageRows = rows

		return nil
	})
}

// WithBigEndian makes Save write big-endian pages and offsets.
// It rarely needs to be used unless interoperability with big-endian readers is required.
func WithBigEndian() Option {
	return options.NoError(func(s *Store) {
		s.bigEndian = true
	})
}

// New creates an empty store containing only the root group "/".
func New(opts ...Option) (*Store, error) {
	root := newObject()
	s := &Store{
		groups:      map[string]*object{"/": &root},
		tables:      make(map[string]*table),
		compression: format.CompressionZstd,
		pageRows:    DefaultPageRows,
	}
	if err := options.Apply(s, opts...); err != nil {
		return nil, err
	}

	return s, nil
}

// Compression returns the page codec type used by Save.
func (s *Store) Compression() format.CompressionType {
	return s.compression
}

func cleanPath(p string) (string, error) {
	if !strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("path %q must be absolute", p)
	}

	return path.Clean(p), nil
}

// Join joins path elements into a store path.
func Join(elem ...string) string {
	return path.Join(append([]string{"/"}, elem...)...)
}

// ensureGroups creates p and its ancestors as groups. Callers hold the write lock.
func (s *Store) ensureGroups(p string) error {
	if _, ok := s.tables[p]; ok {
		return fmt.Errorf("%w: %s is a table", errs.ErrTableExists, p)
	}
	if _, ok := s.groups[p]; ok {
		return nil
	}
	if p != "/" {
		if err := s.ensureGroups(path.Dir(p)); err != nil {
			return err
		}
	}
	g := newObject()
	s.groups[p] = &g

	return nil
}

// CreateGroup creates a group and any missing ancestors. Creating an existing group is a no-op.
func (s *Store) CreateGroup(p string) error {
	p, err := cleanPath(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ensureGroups(p)
}

// HasGroup reports whether a group exists at p.
func (s *Store) HasGroup(p string) bool {
	p, err := cleanPath(p)
	if err != nil {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.groups[p]

	return ok
}

// HasTable reports whether a table exists at p.
func (s *Store) HasTable(p string) bool {
	p, err := cleanPath(p)
	if err != nil {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tables[p]

	return ok
}

// Groups returns all group paths in lexical order.
func (s *Store) Groups() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Sorted(maps.Keys(s.groups))
}

// Tables returns all table paths in lexical order.
func (s *Store) Tables() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Sorted(maps.Keys(s.tables))
}

// Children returns the names of the direct children (groups and tables) of group p.
func (s *Store) Children(p string) ([]string, error) {
	p, err := cleanPath(p)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.groups[p]; !ok {
		return nil, fmt.Errorf("%w: group %s", errs.ErrTableNotFound, p)
	}

	var names []string
	collect := func(child string) {
		if child != p && path.Dir(child) == p {
			names = append(names, path.Base(child))
		}
	}
	for g := range s.groups {
		collect(g)
	}
	for t := range s.tables {
		collect(t)
	}
	slices.Sort(names)

	return names, nil
}

// CreateTable creates a zero-filled table of rows x cols cells. Missing parent groups are created.
func (s *Store) CreateTable(p string, layout format.Layout, rows, cols int) error {
	p, err := cleanPath(p)
	if err != nil {
		return err
	}
	if rows < 0 || cols < 0 || layout.Width() == 0 {
		return fmt.Errorf("%w: table %s shape %dx%d, layout %q", errs.ErrInvalidConfig, p, rows, cols, layout.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[p]; ok {
		return fmt.Errorf("%w: %s", errs.ErrTableExists, p)
	}
	if _, ok := s.groups[p]; ok {
		return fmt.Errorf("%w: %s is a group", errs.ErrTableExists, p)
	}
	if err := s.ensureGroups(path.Dir(p)); err != nil {
		return err
	}

	s.tables[p] = &table{
		object: newObject(),
		id:     hash.ID(p),
		layout: layout,
		rows:   rows,
		cols:   cols,
		data:   make([]float32, rows*cols*layout.Width()),
	}

	return nil
}

// lookupTable returns the table at p. Callers hold a lock.
func (s *Store) lookupTable(p string) (*table, error) {
	p, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	t, ok := s.tables[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errs.ErrTableNotFound, p)
	}

	return t, nil
}

// lookupObject returns the group or table at p. Callers hold a lock.
func (s *Store) lookupObject(p string) (*object, error) {
	p, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	if t, ok := s.tables[p]; ok {
		return &t.object, nil
	}
	if g, ok := s.groups[p]; ok {
		return g, nil
	}

	return nil, fmt.Errorf("%w: %s", errs.ErrTableNotFound, p)
}

// Shape returns the number of rows and columns of the table at p.
func (s *Store) Shape(p string) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.lookupTable(p)
	if err != nil {
		return 0, 0, err
	}

	return t.rows, t.cols, nil
}

// Layout returns the compound layout of the table at p.
func (s *Store) Layout(p string) (format.Layout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.lookupTable(p)
	if err != nil {
		return format.Layout{}, err
	}

	return t.layout, nil
}

// ReadTable copies the rectangle rows x cols of the table at p into a new Block.
func (s *Store) ReadTable(p string, rows, cols Range) (*Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.lookupTable(p)
	if err != nil {
		return nil, err
	}
	if !rows.within(t.rows) || !cols.within(t.cols) {
		return nil, fmt.Errorf("%w: read %s rows %s cols %s of %dx%d", errs.ErrOutOfBounds, p, rows, cols, t.rows, t.cols)
	}

	w := t.layout.Width()
	b := NewBlock(t.layout, rows.Len(), cols.Len())
	for r := 0; r < b.Rows; r++ {
		src := ((rows.Start+r)*t.cols + cols.Start) * w
		copy(b.Data[r*b.Cols*w:(r+1)*b.Cols*w], t.data[src:src+b.Cols*w])
	}

	return b, nil
}

// WriteTable copies b into the rectangle rows x cols of the table at p. The block layout must
// match the table layout and its shape must match the ranges.
func (s *Store) WriteTable(p string, rows, cols Range, b *Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.lookupTable(p)
	if err != nil {
		return err
	}
	if !t.layout.Equal(b.Layout) {
		return fmt.Errorf("%w: write %q into %s (%q)", errs.ErrLayoutMismatch, b.Layout.Name, p, t.layout.Name)
	}
	if !rows.within(t.rows) || !cols.within(t.cols) {
		return fmt.Errorf("%w: write %s rows %s cols %s of %dx%d", errs.ErrOutOfBounds, p, rows, cols, t.rows, t.cols)
	}
	if b.Rows != rows.Len() || b.Cols != cols.Len() || len(b.Data) != b.Rows*b.Cols*b.Layout.Width() {
		return fmt.Errorf("%w: block %dx%d for selection rows %s cols %s", errs.ErrOutOfBounds, b.Rows, b.Cols, rows, cols)
	}

	w := t.layout.Width()
	for r := 0; r < b.Rows; r++ {
		dst := ((rows.Start+r)*t.cols + cols.Start) * w
		copy(t.data[dst:dst+b.Cols*w], b.Data[r*b.Cols*w:(r+1)*b.Cols*w])
	}

	return nil
}

// SetAttr sets an attribute on a group or table. Supported values are strings, numbers (stored
// as float64) and string slices.
func (s *Store) SetAttr(p, key string, value any) error {
	normalized, err := normalizeAttr(value)
	if err != nil {
		return fmt.Errorf("attribute %s of %s: %w", key, p, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.lookupObject(p)
	if err != nil {
		return err
	}
	obj.attrs[key] = normalized

	return nil
}

func normalizeAttr(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case []string:
		return slices.Clone(v), nil
	default:
		return nil, fmt.Errorf("%w: unsupported attribute type %T", errs.ErrInvalidConfig, value)
	}
}

// Attr returns an attribute of a group or table.
func (s *Store) Attr(p, key string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, err := s.lookupObject(p)
	if err != nil {
		return nil, err
	}
	v, ok := obj.attrs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s of %s", errs.ErrAttrNotFound, key, p)
	}
	if list, ok := v.([]string); ok {
		return slices.Clone(list), nil
	}

	return v, nil
}

// AttrKeys returns the attribute names of a group or table in lexical order.
func (s *Store) AttrKeys(p string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, err := s.lookupObject(p)
	if err != nil {
		return nil, err
	}

	return slices.Sorted(maps.Keys(obj.attrs)), nil
}

// AttrFloat returns a numeric attribute.
func (s *Store) AttrFloat(p, key string) (float64, error) {
	v, err := s.Attr(p, key)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("attribute %s of %s is %T, not a number", key, p, v)
	}

	return f, nil
}

// AttrString returns a string attribute.
func (s *Store) AttrString(p, key string) (string, error) {
	v, err := s.Attr(p, key)
	if err != nil {
		return "", err
	}
	str, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("attribute %s of %s is %T, not a string", key, p, v)
	}

	return str, nil
}

// SetLabels sets the axis labels of an index or value table.
func (s *Store) SetLabels(p string, labels []string) error {
	return s.SetAttr(p, format.AttrLabels, labels)
}

// Labels returns the axis labels of an index or value table.
func (s *Store) Labels(p string) ([]string, error) {
	v, err := s.Attr(p, format.AttrLabels)
	if err != nil {
		return nil, err
	}
	labels, ok := v.([]string)
	if !ok {
		return nil, fmt.Errorf("labels of %s are %T, not a string list", p, v)
	}

	return labels, nil
}

// Link attaches a named alias on the object at p that points to the table or group at target.
func (s *Store) Link(p, alias, target string) error {
	target, err := cleanPath(target)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.lookupObject(p)
	if err != nil {
		return err
	}
	if _, err := s.lookupObject(target); err != nil {
		return fmt.Errorf("link %s of %s: %w", alias, p, err)
	}
	obj.links[alias] = target

	return nil
}

// Resolve returns the target path of the alias on the object at p.
func (s *Store) Resolve(p, alias string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, err := s.lookupObject(p)
	if err != nil {
		return "", err
	}
	target, ok := obj.links[alias]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", errs.ErrLinkNotFound, alias, p)
	}

	return target, nil
}

// Links returns a copy of the aliases defined on the object at p.
func (s *Store) Links(p string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, err := s.lookupObject(p)
	if err != nil {
		return nil, err
	}

	return maps.Clone(obj.links), nil
}
