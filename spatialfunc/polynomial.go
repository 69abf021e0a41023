// Package spatialfunc provides concrete diffim.SpatialFunction
// implementations, principally a 2-D polynomial basis, used by the
// spatial aggregator to interpolate per-stamp kernel and background
// coefficients across an image.
package spatialfunc

import "github.com/LSST/ip-diffim/diffimerr"

// Polynomial is a 2-D polynomial spatial function of the given degree,
// ordered by increasing total power: 1, x, y, x^2, xy, y^2, x^3, ...
// Its parameter count is (degree+1)(degree+2)/2.
type Polynomial struct {
	degree int
	params []float64
	powers []powerPair
}

type powerPair struct{ px, py int }

// NewPolynomial builds a degree-d polynomial spatial function with all
// coefficients initialized to zero. degree must be >= 0.
func NewPolynomial(degree int) (*Polynomial, error) {
	if degree < 0 {
		return nil, diffimerr.New("spatialfunc.NewPolynomial", diffimerr.InvalidInput, "degree must be non-negative")
	}
	var powers []powerPair
	for total := 0; total <= degree; total++ {
		for px := total; px >= 0; px-- {
			powers = append(powers, powerPair{px: px, py: total - px})
		}
	}
	return &Polynomial{degree: degree, params: make([]float64, len(powers)), powers: powers}, nil
}

// NumParams returns (degree+1)(degree+2)/2.
func (p *Polynomial) NumParams() int { return len(p.powers) }

// Params returns a copy of the current coefficient vector.
func (p *Polynomial) Params() []float64 {
	out := make([]float64, len(p.params))
	copy(out, p.params)
	return out
}

// SetParams installs a new coefficient vector; it must have NumParams() entries.
func (p *Polynomial) SetParams(params []float64) {
	if len(params) != len(p.params) {
		panic("spatialfunc.Polynomial.SetParams: wrong parameter count")
	}
	copy(p.params, params)
}

// Eval evaluates the polynomial at (x,y) with the current coefficients.
func (p *Polynomial) Eval(x, y float64) float64 {
	var sum float64
	for i, pw := range p.powers {
		sum += p.params[i] * ipow(x, pw.px) * ipow(y, pw.py)
	}
	return sum
}

func ipow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// Constant is a zero-degree spatial function: a single coefficient,
// returned unchanged at every (x,y). It is the natural choice for the
// spatially-invariant first basis term under the constant-first-term
// convention.
type Constant struct {
	value float64
}

// NewConstant returns a Constant spatial function with initial value 0.
func NewConstant() *Constant { return &Constant{} }

func (c *Constant) NumParams() int          { return 1 }
func (c *Constant) Params() []float64       { return []float64{c.value} }
func (c *Constant) SetParams(p []float64)   { c.value = p[0] }
func (c *Constant) Eval(x, y float64) float64 { return c.value }
