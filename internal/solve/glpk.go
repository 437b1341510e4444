package solve

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/lukpank/go-glpk/glpk"
)

// GLPK solves models through the GNU Linear Programming Kit: simplex on the
// LP relaxation, then branch-and-cut for the integer columns. The zero value
// is ready to use.
type GLPK struct {
	// Verbose switches GLPK terminal output from errors-only to full.
	Verbose bool
}

// Solve maps the model 1:1 onto a GLPK problem object and optimizes it. The
// underlying library has no interruption hook, so ctx is only checked at
// phase boundaries.
func (g *GLPK) Solve(ctx context.Context, m *Model) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	lp := glpk.New()
	defer lp.Delete()
	lp.SetProbName("taxinav")
	lp.SetObjDir(glpk.ObjDir(glpk.MIN))

	if n := m.NumVars(); n > 0 {
		lp.AddCols(n)
	}
	for i, v := range m.Vars() {
		col := i + 1
		lp.SetColName(col, v.Name)
		switch v.Kind {
		case Binary:
			lp.SetColKind(col, glpk.VarType(glpk.BV))
		case Continuous:
			lp.SetColKind(col, glpk.VarType(glpk.CV))
			setBounds(lp, col, v.Lower, v.Upper)
		}
	}
	for _, t := range accumulate(m.Objective()) {
		lp.SetObjCoef(int(t.Var)+1, t.Coef)
	}

	if n := m.NumConstraints(); n > 0 {
		lp.AddRows(n)
	}
	for i, c := range m.Constraints() {
		row := i + 1
		lp.SetRowName(row, c.Name)
		switch c.Sense {
		case LE:
			lp.SetRowBnds(row, glpk.BndsType(glpk.UP), 0, c.RHS)
		case GE:
			lp.SetRowBnds(row, glpk.BndsType(glpk.LO), c.RHS, 0)
		case EQ:
			lp.SetRowBnds(row, glpk.BndsType(glpk.FX), c.RHS, c.RHS)
		}
		terms := accumulate(c.Expr)
		// SetMatRow uses 1-based arrays; element 0 is a dummy.
		ind := make([]int32, len(terms)+1)
		val := make([]float64, len(terms)+1)
		for k, t := range terms {
			ind[k+1] = int32(t.Var) + 1
			val[k+1] = t.Coef
		}
		lp.SetMatRow(row, ind, val)
	}

	msgLev := glpk.MsgLev(glpk.MSG_ERR)
	if g.Verbose {
		msgLev = glpk.MsgLev(glpk.MSG_ON)
	}

	smcp := glpk.NewSmcp()
	smcp.SetMsgLev(msgLev)
	if err := lp.Simplex(smcp); err != nil {
		return Result{}, fmt.Errorf("simplex: %w", err)
	}
	switch lp.Status() {
	case glpk.NOFEAS, glpk.INFEAS:
		return Result{Status: StatusInfeasible}, nil
	case glpk.UNBND:
		return Result{Status: StatusUnbounded}, nil
	case glpk.OPT, glpk.FEAS:
	default:
		return Result{Status: StatusOther}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	iocp := glpk.NewIocp()
	iocp.SetMsgLev(msgLev)
	if err := lp.Intopt(iocp); err != nil {
		return Result{}, fmt.Errorf("intopt: %w", err)
	}
	switch lp.MipStatus() {
	case glpk.OPT, glpk.FEAS:
	case glpk.NOFEAS:
		return Result{Status: StatusInfeasible}, nil
	default:
		return Result{Status: StatusOther}, nil
	}

	res := Result{
		Status:    StatusOptimal,
		Objective: lp.MipObjVal(),
		Values:    make([]float64, m.NumVars()),
	}
	for i := range res.Values {
		res.Values[i] = lp.MipColVal(i + 1)
	}
	return res, nil
}

func setBounds(lp *glpk.Prob, col int, lower, upper float64) {
	noLo := math.IsInf(lower, -1)
	noUp := math.IsInf(upper, 1)
	switch {
	case noLo && noUp:
		lp.SetColBnds(col, glpk.BndsType(glpk.FR), 0, 0)
	case noUp:
		lp.SetColBnds(col, glpk.BndsType(glpk.LO), lower, 0)
	case noLo:
		lp.SetColBnds(col, glpk.BndsType(glpk.UP), 0, upper)
	case lower == upper:
		lp.SetColBnds(col, glpk.BndsType(glpk.FX), lower, upper)
	default:
		lp.SetColBnds(col, glpk.BndsType(glpk.DB), lower, upper)
	}
}

// accumulate folds duplicate variables of an expression into one term per
// column, sorted by column. GLPK rejects rows with repeated column indices.
func accumulate(e Expr) []Term {
	sums := map[Var]float64{}
	for _, t := range e {
		sums[t.Var] += t.Coef
	}
	out := make([]Term, 0, len(sums))
	for v, c := range sums {
		if c != 0 {
			out = append(out, Term{Var: v, Coef: c})
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Var < out[b].Var })
	return out
}
