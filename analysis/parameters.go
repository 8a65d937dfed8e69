package analysis

import (
	"errors"
	"fmt"

	"github.com/arloliu/loopfit/errs"
	"github.com/arloliu/loopfit/format"
	"github.com/arloliu/loopfit/model"
	"github.com/arloliu/loopfit/store"
)

// parameterRows is the number of rows converted per read.
const parameterRows = 1024

// ExtractLoopParameters computes the switching parameters of every record of the loop-fit table
// at fitTable and writes them to "<fitTable>_Loop_Parameters" with the attribute nuc_threshold.
// The output table is created on first use and overwritten by later calls, so extraction can be
// repeated with other thresholds. It returns the path of the parameters table.
func ExtractLoopParameters(s Storage, fitTable string, nucThreshold float64) (string, error) {
	if !(nucThreshold > 0 && nucThreshold < 1) {
		return "", fmt.Errorf("%w: nucleation threshold must be in (0, 1), got %g", errs.ErrInvalidConfig, nucThreshold)
	}

	layout, err := s.Layout(fitTable)
	if err != nil {
		return "", err
	}
	if !layout.Equal(format.LoopFitLayout) {
		return "", fmt.Errorf("%w: %s has layout %q, want %q", errs.ErrLayoutMismatch, fitTable, layout.Name, format.LoopFitLayout.Name)
	}
	rows, cols, err := s.Shape(fitTable)
	if err != nil {
		return "", err
	}

	out := fitTable + format.LoopParametersSuffix
	if err := ensureParameterTable(s, fitTable, out, rows, cols); err != nil {
		return "", err
	}

	for start := 0; start < rows; start += parameterRows {
		sel := store.Span(start, min(start+parameterRows, rows))
		b, err := s.ReadTable(fitTable, sel, store.All(cols))
		if err != nil {
			return "", err
		}
		grid, err := fitRecords(b)
		if err != nil {
			return "", err
		}

		params := model.ExtractSwitching(grid.Data, nucThreshold)
		pb := store.NewBlock(format.SwitchingLayout, b.Rows, b.Cols)
		for i, p := range params {
			pb.SetRecord(i/b.Cols, i%b.Cols, switchingValues(p))
		}
		if err := s.WriteTable(out, sel, store.All(cols), pb); err != nil {
			return "", err
		}
	}

	if err := s.SetAttr(out, format.AttrNucThreshold, nucThreshold); err != nil {
		return "", err
	}

	return out, nil
}

func ensureParameterTable(s Storage, fitTable, out string, rows, cols int) error {
	r, c, err := s.Shape(out)
	switch {
	case errors.Is(err, errs.ErrTableNotFound):
		if err := s.CreateTable(out, format.SwitchingLayout, rows, cols); err != nil {
			return err
		}
	case err != nil:
		return err
	case r != rows || c != cols:
		return fmt.Errorf("%w: %s is %dx%d, fit table is %dx%d", errs.ErrAxisMismatch, out, r, c, rows, cols)
	default:
		return nil
	}

	for _, alias := range []string{format.PositionIndices, format.PositionValues, format.SpectroscopicIndices, format.SpectroscopicValues} {
		target, err := s.Resolve(fitTable, alias)
		if errors.Is(err, errs.ErrLinkNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := s.Link(out, alias, target); err != nil {
			return err
		}
	}

	return nil
}
