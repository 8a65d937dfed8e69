package cluster

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"gonum.org/v1/gonum/floats"

	"github.com/arloliu/loopfit/errs"
)

// NoParent is the Parent of the root node.
const NoParent = -1

// Node is one vertex of a merge tree. Leaves have IDs 0..k-1 equal to their cluster index;
// internal nodes are numbered in merge order.
type Node struct {
	ID       int
	Parent   int
	Children []int
	// Distance is the normalised merge distance, zero for leaves.
	Distance float64
	// Centroid is the cluster mean for a leaf and the average of the two children otherwise.
	Centroid []float64
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// Tree is an arena of 2k-1 nodes with a single root.
type Tree struct {
	nodes  []Node
	leaves int
	root   int
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Leaves returns the number of leaves.
func (t *Tree) Leaves() int {
	return t.leaves
}

// Root returns the root node ID.
func (t *Tree) Root() int {
	return t.root
}

// Node returns the node with the given ID.
func (t *Tree) Node(id int) *Node {
	return &t.nodes[id]
}

// Depth returns the number of edges between id and the root.
func (t *Tree) Depth(id int) int {
	d := 0
	for t.nodes[id].Parent != NoParent {
		id = t.nodes[id].Parent
		d++
	}

	return d
}

// Linkage builds the weighted-average (WPGMA) merge tree of centroids. At every step the two
// closest active clusters merge and the distance from the merged cluster to any other is the
// mean of its children's distances. Ties merge the pair with the lowest IDs.
func Linkage(centroids [][]float64) (*Tree, error) {
	k := len(centroids)
	if k == 0 {
		return nil, fmt.Errorf("%w: no centroids to link", errs.ErrInvalidConfig)
	}

	total := 2*k - 1
	t := &Tree{nodes: make([]Node, total), leaves: k, root: total - 1}
	for i, c := range centroids {
		t.nodes[i] = Node{ID: i, Parent: NoParent, Centroid: clone(c)}
	}

	// dist is indexed by node ID; only rows/cols of active nodes are meaningful
	dist := make([][]float64, total)
	for i := range dist {
		dist[i] = make([]float64, total)
	}
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			d := floats.Distance(centroids[i], centroids[j], 2)
			dist[i][j], dist[j][i] = d, d
		}
	}

	active := make([]int, k)
	for i := range active {
		active[i] = i
	}

	maxDist := 0.0
	for next := k; next < total; next++ {
		bi, bj := 0, 1
		best := math.Inf(1)
		for x := 0; x < len(active); x++ {
			for y := x + 1; y < len(active); y++ {
				if d := dist[active[x]][active[y]]; d < best {
					bi, bj, best = x, y, d
				}
			}
		}
		a, b := active[bi], active[bj]

		centroid := clone(t.nodes[a].Centroid)
		floats.Add(centroid, t.nodes[b].Centroid)
		floats.Scale(0.5, centroid)
		t.nodes[next] = Node{ID: next, Parent: NoParent, Children: []int{a, b}, Distance: best, Centroid: centroid}
		t.nodes[a].Parent = next
		t.nodes[b].Parent = next
		maxDist = math.Max(maxDist, best)

		for _, o := range active {
			if o == a || o == b {
				continue
			}
			d := (dist[a][o] + dist[b][o]) / 2
			dist[next][o], dist[o][next] = d, d
		}

		// bj > bi, so removing bj first keeps bi valid
		active = append(active[:bj], active[bj+1:]...)
		active[bi] = next
	}

	if maxDist > 0 {
		for i := k; i < total; i++ {
			t.nodes[i].Distance /= maxDist
		}
	}

	return t, nil
}

// Visitor processes one node given the value produced by its parent (or the seed for the root)
// and returns the value handed to the node's children.
type Visitor[S any] func(ctx context.Context, node *Node, inherited S) (S, error)

// Walk visits every node of t depth-first, parents before children. Once a node is visited its
// child subtrees proceed concurrently; at most workers visits run at once (workers <= 1 visits
// sequentially in pre-order, left child first). The first visitor error cancels the walk.
func Walk[S any](ctx context.Context, t *Tree, seed S, workers int, visit Visitor[S]) error {
	if workers <= 1 {
		return walkSequential(ctx, t, t.root, seed, visit)
	}

	sem := semaphore.NewWeighted(int64(workers))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return walkConcurrent(gctx, g, sem, t, t.root, seed, visit)
	})

	return g.Wait()
}

func walkSequential[S any](ctx context.Context, t *Tree, id int, inherited S, visit Visitor[S]) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	node := &t.nodes[id]
	out, err := visit(ctx, node, inherited)
	if err != nil {
		return fmt.Errorf("node %d: %w", id, err)
	}
	for _, child := range node.Children {
		if err := walkSequential(ctx, t, child, out, visit); err != nil {
			return err
		}
	}

	return nil
}

func walkConcurrent[S any](ctx context.Context, g *errgroup.Group, sem *semaphore.Weighted, t *Tree, id int, inherited S, visit Visitor[S]) error {
	if err := sem.Acquire(ctx, 1); err != nil {
		return err
	}
	node := &t.nodes[id]
	out, err := visit(ctx, node, inherited)
	sem.Release(1)
	if err != nil {
		return fmt.Errorf("node %d: %w", id, err)
	}

	for _, child := range node.Children {
		g.Go(func() error {
			return walkConcurrent(ctx, g, sem, t, child, out, visit)
		})
	}

	return nil
}
