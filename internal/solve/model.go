// Package solve is the only point of contact with the external MILP solver.
// Model accumulates variables, linear constraints, and a minimize objective;
// Solver implementations consume a finished Model and report a terminal
// status with solution values. The package performs no domain logic.
package solve

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
)

// VarKind is the type of a decision variable.
type VarKind int

const (
	Binary VarKind = iota
	Continuous
)

// Sense is the comparison sense of a linear constraint.
type Sense int

const (
	LE Sense = iota
	GE
	EQ
)

func (s Sense) String() string {
	switch s {
	case LE:
		return "<="
	case GE:
		return ">="
	default:
		return "="
	}
}

// Var is a handle to a model column. Handles are dense and allocated in
// order, starting at 0.
type Var int

// Term is one coefficient of a linear expression.
type Term struct {
	Var  Var
	Coef float64
}

// Expr is a linear expression over model variables. Repeated variables are
// allowed; coefficients accumulate.
type Expr []Term

// Plus appends a term and returns the extended expression.
func (e Expr) Plus(v Var, coef float64) Expr {
	return append(e, Term{Var: v, Coef: coef})
}

// Variable is a model column.
type Variable struct {
	Name  string
	Kind  VarKind
	Lower float64
	Upper float64 // math.Inf(1) for unbounded above
}

// Constraint is one linear row: Expr Sense RHS.
type Constraint struct {
	Name  string
	Expr  Expr
	Sense Sense
	RHS   float64
}

// Model is an append-only accumulation of a MILP instance. Identical build
// sequences produce identical models; Fingerprint hashes the coefficient
// structure so rebuild determinism is checkable.
type Model struct {
	vars      []Variable
	cons      []Constraint
	objective Expr
}

// AddBinary allocates a 0/1 column.
func (m *Model) AddBinary(name string) Var {
	m.vars = append(m.vars, Variable{Name: name, Kind: Binary, Lower: 0, Upper: 1})
	return Var(len(m.vars) - 1)
}

// AddContinuous allocates a real column with the given bounds. Pass
// math.Inf(1) for no upper bound.
func (m *Model) AddContinuous(name string, lower, upper float64) Var {
	m.vars = append(m.vars, Variable{Name: name, Kind: Continuous, Lower: lower, Upper: upper})
	return Var(len(m.vars) - 1)
}

// AddConstraint appends a linear row.
func (m *Model) AddConstraint(name string, e Expr, s Sense, rhs float64) {
	m.cons = append(m.cons, Constraint{Name: name, Expr: e, Sense: s, RHS: rhs})
}

// SetObjective sets the minimize objective.
func (m *Model) SetObjective(e Expr) { m.objective = e }

// Objective returns the current minimize objective.
func (m *Model) Objective() Expr { return m.objective }

// Vars returns the allocated columns in order.
func (m *Model) Vars() []Variable { return m.vars }

// Constraints returns the accumulated rows in order.
func (m *Model) Constraints() []Constraint { return m.cons }

// NumVars returns the column count.
func (m *Model) NumVars() int { return len(m.vars) }

// NumConstraints returns the row count.
func (m *Model) NumConstraints() int { return len(m.cons) }

// EvalExpr evaluates e under the assignment x (indexed by Var).
func EvalExpr(e Expr, x []float64) float64 {
	var sum float64
	for _, t := range e {
		sum += t.Coef * x[t.Var]
	}
	return sum
}

const evalTol = 1e-6

// Violations returns the names of constraints the assignment x does not
// satisfy, plus bound violations, in model order. Used by tests to check
// constraint semantics without invoking a solver.
func (m *Model) Violations(x []float64) []string {
	var out []string
	for i, v := range m.vars {
		if x[i] < v.Lower-evalTol || x[i] > v.Upper+evalTol {
			out = append(out, fmt.Sprintf("bounds:%s", v.Name))
		}
	}
	for _, c := range m.cons {
		lhs := EvalExpr(c.Expr, x)
		ok := false
		switch c.Sense {
		case LE:
			ok = lhs <= c.RHS+evalTol
		case GE:
			ok = lhs >= c.RHS-evalTol
		case EQ:
			ok = math.Abs(lhs-c.RHS) <= evalTol
		}
		if !ok {
			out = append(out, c.Name)
		}
	}
	return out
}

// Fingerprint hashes the model's coefficient structure: variable kinds and
// bounds, per-constraint accumulated coefficients, senses, right-hand sides,
// and the objective. Constraint and variable names are excluded so the hash
// captures the mathematical instance.
func (m *Model) Fingerprint() string {
	h := sha256.New()
	w := func(f float64) {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(f))
		h.Write(b[:])
	}
	for _, v := range m.vars {
		w(float64(v.Kind))
		w(v.Lower)
		w(v.Upper)
	}
	for _, c := range m.cons {
		w(float64(c.Sense))
		w(c.RHS)
		for _, t := range dense(c.Expr, len(m.vars)) {
			w(t)
		}
	}
	for _, t := range dense(m.objective, len(m.vars)) {
		w(t)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func dense(e Expr, n int) []float64 {
	out := make([]float64, n)
	for _, t := range e {
		out[t.Var] += t.Coef
	}
	return out
}
