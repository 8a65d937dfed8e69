package analysis

import (
	"github.com/arloliu/loopfit/format"
	"github.com/arloliu/loopfit/store"
)

// Storage is the table store the pipeline reads its input from and writes its results to.
// *store.Store implements it.
type Storage interface {
	CreateGroup(p string) error
	HasGroup(p string) bool
	CreateTable(p string, layout format.Layout, rows, cols int) error
	Shape(p string) (int, int, error)
	Layout(p string) (format.Layout, error)
	ReadTable(p string, rows, cols store.Range) (*store.Block, error)
	WriteTable(p string, rows, cols store.Range, b *store.Block) error
	Labels(p string) ([]string, error)
	SetLabels(p string, labels []string) error
	Attr(p, key string) (any, error)
	SetAttr(p, key string, value any) error
	Link(p, alias, target string) error
	Resolve(p, alias string) (string, error)
}

var _ Storage = (*store.Store)(nil)
