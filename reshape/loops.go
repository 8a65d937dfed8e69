package reshape

import (
	"fmt"
	"strings"

	"github.com/arloliu/loopfit/axis"
	"github.com/arloliu/loopfit/errs"
)

// PositionsLabel names the leading pixel axis of a Plan.
const PositionsLabel = "Positions"

// Plan records how a chunk was flattened so that it can be restored exactly.
type Plan struct {
	// Shape is the N-D shape of the chunk: [pixels, cycle axes slow to fast].
	Shape []int
	// Names labels the axes of Shape.
	Names []string
	// Perm lists the Shape axes in loop-major order: bias, pixels, then the remaining axes in
	// index-table order.
	Perm []int
}

// NewPlan builds the flattening plan of a chunk of pixels for one cycle slice of m.
func NewPlan(pixels int, m *axis.Model) (Plan, error) {
	if !m.HasBias() {
		return Plan{}, errs.ErrNoBiasAxis
	}

	nesting := m.Nesting()
	plan := Plan{
		Shape: []int{pixels},
		Names: []string{PositionsLabel},
	}
	pos := make(map[int]int, len(nesting)) // table row -> Shape axis
	for i, a := range nesting {
		plan.Shape = append(plan.Shape, a.Size)
		plan.Names = append(plan.Names, a.Name)
		pos[a.Row] = i + 1
	}

	bias := m.BiasAxis().Row
	plan.Perm = []int{pos[bias], 0}
	for _, a := range m.CycleAxes() {
		if a.Row != bias {
			plan.Perm = append(plan.Perm, pos[a.Row])
		}
	}

	return plan, nil
}

// Pixels returns the number of pixels of the chunk.
func (p Plan) Pixels() int {
	return p.Shape[0]
}

// Steps returns the number of bias steps per loop.
func (p Plan) Steps() int {
	return p.Shape[p.Perm[0]]
}

// Loops returns the number of loops in the chunk.
func (p Plan) Loops() int {
	return numel(p.Shape) / p.Steps()
}

// LoopsPerPixel returns the number of loops of one pixel in one cycle slice.
func (p Plan) LoopsPerPixel() int {
	return p.Loops() / p.Pixels()
}

func (p Plan) permutedShape() []int {
	shape := make([]int, len(p.Perm))
	for i, a := range p.Perm {
		shape[i] = p.Shape[a]
	}

	return shape
}

// String describes the plan, e.g. "[Positions=4 DC_Offset=64] -> [DC_Offset Positions]".
func (p Plan) String() string {
	dims := make([]string, len(p.Shape))
	for i := range p.Shape {
		dims[i] = fmt.Sprintf("%s=%d", p.Names[i], p.Shape[i])
	}
	order := make([]string, len(p.Perm))
	for i, a := range p.Perm {
		order[i] = p.Names[a]
	}

	return "[" + strings.Join(dims, " ") + "] -> [" + strings.Join(order, " ") + "]"
}

// FlattenToLoops converts a [pixels x columns-per-cycle] chunk into [bias steps x loops].
//
// Returns:
//   - *Tensor[T]: the loops, one per column
//   - Plan: the recipe for UnflattenFromLoops and UnflattenResults
//   - error: errs.ErrReshape when the chunk does not factor into the axis cardinalities
func FlattenToLoops[T any](raw *Tensor[T], m *axis.Model) (*Tensor[T], Plan, error) {
	if len(raw.Shape) != 2 {
		return nil, Plan{}, fmt.Errorf("%w: chunk must be 2-D, got shape %v", errs.ErrReshape, raw.Shape)
	}

	plan, err := NewPlan(raw.Shape[0], m)
	if err != nil {
		return nil, Plan{}, err
	}

	nd, err := raw.Reshape(plan.Shape...)
	if err != nil {
		return nil, Plan{}, fmt.Errorf("chunk %v as %s: %w", raw.Shape, plan, err)
	}
	moved, err := nd.Permute(plan.Perm...)
	if err != nil {
		return nil, Plan{}, err
	}
	loops, err := moved.Reshape(plan.Steps(), plan.Loops())
	if err != nil {
		return nil, Plan{}, err
	}

	return loops, plan, nil
}

// UnflattenFromLoops is the exact inverse of FlattenToLoops.
func UnflattenFromLoops[T any](loops *Tensor[T], plan Plan) (*Tensor[T], error) {
	nd, err := loops.Reshape(plan.permutedShape()...)
	if err != nil {
		return nil, fmt.Errorf("loops %v as %s: %w", loops.Shape, plan, err)
	}
	back, err := nd.Permute(Inverse(plan.Perm)...)
	if err != nil {
		return nil, err
	}

	return back.Reshape(plan.Pixels(), numel(plan.Shape)/plan.Pixels())
}

// resultsPerm is Perm with the bias axis dropped and the remaining axes renumbered.
func (p Plan) resultsPerm() []int {
	bias := p.Perm[0]
	perm := make([]int, 0, len(p.Perm)-1)
	for _, a := range p.Perm[1:] {
		if a > bias {
			a--
		}
		perm = append(perm, a)
	}

	return perm
}

// UnflattenResults arranges one result per loop, in loop order, as [pixels x loops per pixel]
// in the column order of the reduced (per-loop) spectroscopic table.
func UnflattenResults[T any](results []T, plan Plan) (*Tensor[T], error) {
	shape := plan.permutedShape()[1:]
	nd, err := NewTensor(results, shape...)
	if err != nil {
		return nil, fmt.Errorf("results as %s: %w", plan, err)
	}
	back, err := nd.Permute(Inverse(plan.resultsPerm())...)
	if err != nil {
		return nil, err
	}

	return back.Reshape(plan.Pixels(), plan.LoopsPerPixel())
}

// FlattenResults is the inverse of UnflattenResults: it reads a [pixels x loops per pixel]
// table back into loop order.
func FlattenResults[T any](stored *Tensor[T], plan Plan) ([]T, error) {
	if numel(stored.Shape) != plan.Loops() {
		return nil, fmt.Errorf("%w: %d stored results for %d loops (%s)", errs.ErrReshape, numel(stored.Shape), plan.Loops(), plan)
	}

	perm := plan.resultsPerm()
	reduced := make([]int, 0, len(plan.Shape)-1)
	for i, s := range plan.Shape {
		if i != plan.Perm[0] {
			reduced = append(reduced, s)
		}
	}

	nd, err := stored.Reshape(reduced...)
	if err != nil {
		return nil, err
	}
	moved, err := nd.Permute(perm...)
	if err != nil {
		return nil, err
	}

	return moved.Data, nil
}
