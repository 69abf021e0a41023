// Package candidate implements the candidate orchestration (spec
// component C7): one stamp's lifecycle from variance construction
// through an optional single-kernel iteration to a solved "original"
// or "pca" StaticSolution, plus the GetX access pattern a caller uses
// to fetch whichever solution slot it needs.
package candidate

import (
	diffim "github.com/LSST/ip-diffim"
	"github.com/LSST/ip-diffim/diffimerr"
	"github.com/LSST/ip-diffim/diffimlog"
	"github.com/LSST/ip-diffim/imageutil"
	"github.com/LSST/ip-diffim/kernelbasis"
	"github.com/LSST/ip-diffim/linsolve"
	"github.com/LSST/ip-diffim/options"
	"github.com/LSST/ip-diffim/regsolve"
	"github.com/LSST/ip-diffim/stampsolution"
	"gonum.org/v1/gonum/mat"
)

// Switch selects which solution slot an accessor reads.
type Switch int

const (
	Original Switch = iota
	PCA
	Recent
)

// Status is a candidate's acceptance state, set by the condition
// number gate in Build.
type Status int

const (
	StatusUnknown Status = iota
	StatusGood
	StatusBad
)

// Candidate owns one stamp's template, science and variance images
// (plus an optional pixel mask), its center, and up to two solved
// slots: the "original" static solution, and a "pca" solution built
// from a PCA-derived basis on a later call to Build. Candidates are
// safe to build concurrently with one another provided Template,
// Science, TemplateVariance, ScienceVariance, Mask and Conv are
// treated as read-only for the duration of the build, per spec.md §5.
type Candidate struct {
	Template, Science                 diffim.Image
	TemplateVariance, ScienceVariance diffim.Image
	Mask                               diffim.Mask
	CenterX, CenterY                   float64

	Conv  diffim.Convolver
	Stats diffim.Statistics
	Opts  *options.Options

	isInitialized     bool
	useRegularization bool
	variance          diffim.Image

	original, pca *stampsolution.StaticSolution
	status        Status
}

// New builds an unbuilt Candidate. tmpl, sci and their variances must
// share shape and coordinate origin, per the Stamp invariant of
// spec.md §3.
func New(tmpl, sci, tmplVar, sciVar diffim.Image, mask diffim.Mask, centerX, centerY float64, conv diffim.Convolver, stats diffim.Statistics, opts *options.Options) *Candidate {
	return &Candidate{
		Template:         tmpl,
		Science:          sci,
		TemplateVariance: tmplVar,
		ScienceVariance:  sciVar,
		Mask:             mask,
		CenterX:          centerX,
		CenterY:          centerY,
		Conv:             conv,
		Stats:            stats,
		Opts:             opts,
	}
}

// Status returns the candidate's current acceptance state.
func (c *Candidate) Status() Status { return c.status }

// Build runs one full build step: compose the variance estimate
// (optionally replacing it by its median), build the appropriate
// static solution into the Original or PCA slot depending on whether
// this is the candidate's first build, gate on condition number if
// configured, solve, and — if IterateSingleKernel is set and the
// variance was not held constant — rebuild once against a variance
// estimate reweighted for the difference image. H may be nil for an
// unregularized fit.
func (c *Candidate) Build(basis kernelbasis.KernelBasis, H *mat.SymDense) error {
	variance, err := c.composeVariance()
	if err != nil {
		return err
	}
	c.variance = variance

	if err := c.buildKernelSolution(basis, H); err != nil {
		return err
	}
	if c.status == StatusBad {
		c.isInitialized = true
		return nil
	}

	if c.Opts.IterateSingleKernel && !c.Opts.ConstantVarianceWeighting {
		reweighted, err := c.varianceOfDifference()
		if err != nil {
			return err
		}
		c.variance = reweighted

		if err := c.buildKernelSolution(basis, H); err != nil {
			return err
		}
	}

	c.isInitialized = true
	return nil
}

// composeVariance sums the science and template variance planes and,
// if ConstantVarianceWeighting is set, replaces every pixel with their
// median (or 1.0 if that median is non-positive).
func (c *Candidate) composeVariance() (diffim.Image, error) {
	b := c.ScienceVariance.Bounds()
	data := make([]float64, b.Area())
	idx := 0
	for y := b.MinY; y <= b.MaxY; y++ {
		for x := b.MinX; x <= b.MaxX; x++ {
			data[idx] = c.ScienceVariance.At(x, y) + c.TemplateVariance.At(x, y)
			idx++
		}
	}
	sum, err := imageutil.NewDenseImageAt(b.MinX, b.MinY, b.Width(), b.Height(), data)
	if err != nil {
		return nil, err
	}

	if !c.Opts.ConstantVarianceWeighting {
		return sum, nil
	}

	median := c.Stats.Median(sum)
	value := median
	if median <= 0 {
		value = 1.0
	}
	diffimlog.Debug("candidate: using constant variance", "value", value)
	filled := make([]float64, b.Area())
	for i := range filled {
		filled[i] = value
	}
	return imageutil.NewDenseImageAt(b.MinX, b.MinY, b.Width(), b.Height(), filled)
}

func (c *Candidate) buildKernelSolution(basis kernelbasis.KernelBasis, H *mat.SymDense) error {
	const op = "candidate.Candidate.buildKernelSolution"

	ctype, err := conditionNumberType(c.Opts.ConditionNumberType)
	if err != nil {
		return diffimerr.Newf(op, diffimerr.InvalidInput, "%v", err)
	}

	build := func() (*stampsolution.StaticSolution, error) {
		if c.Mask != nil {
			return stampsolution.BuildWithMask(c.Template, c.Science, c.variance, c.Mask, c.Stats, basis, c.Conv, c.Opts.FitForBackground)
		}
		return stampsolution.Build(c.Template, c.Science, c.variance, c.Stats, basis, c.Conv, c.Opts.FitForBackground)
	}

	sol, err := build()
	if err != nil {
		return err
	}

	if c.Opts.CheckConditionNumber {
		cNumber, err := sol.GetConditionNumber(ctype)
		if err != nil {
			return err
		}
		if cNumber > c.Opts.MaxConditionNumber {
			diffimlog.Debug("candidate: bad condition number", "conditionNumber", cNumber)
			c.status = StatusBad
			c.installSlot(sol)
			return nil
		}
	}

	if H != nil {
		c.useRegularization = true
		if _, err := regsolve.Solve(sol, H, c.Opts, 0); err != nil {
			return err
		}
	} else {
		c.useRegularization = false
		if err := sol.Solve(0); err != nil {
			return err
		}
	}

	c.status = StatusGood
	c.installSlot(sol)
	return nil
}

func (c *Candidate) installSlot(sol *stampsolution.StaticSolution) {
	if c.isInitialized {
		c.pca = sol
	} else {
		c.original = sol
	}
}

func conditionNumberType(t options.ConditionNumberType) (linsolve.ConditionNumberType, error) {
	switch t {
	case options.Eigenvalue:
		return linsolve.Eigenvalue, nil
	case options.SVD:
		return linsolve.SVD, nil
	default:
		return 0, diffimerr.Newf("candidate.conditionNumberType", diffimerr.InvalidInput, "unrecognized ConditionNumberType: %d", t)
	}
}

// slot is the (kernel, background, kSum, image, solution) tuple GetX returns.
type slot struct {
	Kernel     []float64
	Background float64
	Ksum       float64
	Image      diffim.Image
	Solution   *stampsolution.StaticSolution
}

// GetX returns the requested solution slot. Recent prefers PCA, falling
// back to Original; a missing slot is a Runtime error; an unrecognized
// switch value is a Logic error, matching the original's
// std::logic_error for an invalid CandidateSwitch.
func (c *Candidate) GetX(which Switch) (slot, error) {
	const op = "candidate.Candidate.GetX"

	pick := func(sol *stampsolution.StaticSolution, name string) (slot, error) {
		if sol == nil {
			return slot{}, diffimerr.Newf(op, diffimerr.Runtime, "%s kernel does not exist", name)
		}
		kernel, err := sol.GetKernel()
		if err != nil {
			return slot{}, err
		}
		bg, err := sol.GetBackground()
		if err != nil {
			return slot{}, err
		}
		ksum, err := sol.GetKsum()
		if err != nil {
			return slot{}, err
		}
		img, err := sol.MakeKernelImage()
		if err != nil {
			return slot{}, err
		}
		return slot{Kernel: kernel, Background: bg, Ksum: ksum, Image: img, Solution: sol}, nil
	}

	switch which {
	case Original:
		return pick(c.original, "original")
	case PCA:
		return pick(c.pca, "pca")
	case Recent:
		if c.pca != nil {
			return pick(c.pca, "pca")
		}
		if c.original != nil {
			return pick(c.original, "original")
		}
		return slot{}, diffimerr.New(op, diffimerr.Runtime, "no kernels exist")
	default:
		return slot{}, diffimerr.Newf(op, diffimerr.Logic, "invalid CandidateSwitch %d, cannot get kernel", which)
	}
}

// DifferenceImage computes science - convolve(template, kernel) -
// background for the requested slot's solution, matching
// KernelCandidate::getDifferenceImage.
func (c *Candidate) DifferenceImage(which Switch) (diffim.Image, error) {
	s, err := c.GetX(which)
	if err != nil {
		return nil, err
	}
	return c.differenceImageFor(s)
}

func (c *Candidate) differenceImageFor(s slot) (diffim.Image, error) {
	const op = "candidate.Candidate.differenceImage"
	kernelImg := s.Image
	kb := kernelImg.Bounds()
	cx, cy := kb.Width()/2, kb.Height()/2

	convolved, err := c.Conv.Convolve(c.Template, kernelImg, cx, cy, false)
	if err != nil {
		return nil, diffimerr.Newf(op, diffimerr.InvalidInput, "convolving template by solved kernel: %v", err)
	}

	b := c.Science.Bounds()
	data := make([]float64, b.Area())
	idx := 0
	for y := b.MinY; y <= b.MaxY; y++ {
		for x := b.MinX; x <= b.MaxX; x++ {
			data[idx] = c.Science.At(x, y) - convolved.At(x, y) - s.Background
			idx++
		}
	}
	return imageutil.NewDenseImageAt(b.MinX, b.MinY, b.Width(), b.Height(), data)
}

// varianceOfDifference approximates the difference image's pixel
// variance as Var(science) + Conv(Var(template), kernel^2): standard
// first-order error propagation for diff = science - conv(template,
// kernel) - background, ignoring kernel-coefficient covariance. This
// is the new variance estimate IterateSingleKernel feeds back into a
// second build.
func (c *Candidate) varianceOfDifference() (diffim.Image, error) {
	const op = "candidate.Candidate.varianceOfDifference"
	s, err := c.GetX(Recent)
	if err != nil {
		return nil, err
	}
	kernelImg := s.Image
	kb := kernelImg.Bounds()
	sq := make([]float64, kb.Area())
	idx := 0
	for y := kb.MinY; y <= kb.MaxY; y++ {
		for x := kb.MinX; x <= kb.MaxX; x++ {
			v := kernelImg.At(x, y)
			sq[idx] = v * v
			idx++
		}
	}
	sqKernel, err := imageutil.NewDenseImageAt(kb.MinX, kb.MinY, kb.Width(), kb.Height(), sq)
	if err != nil {
		return nil, err
	}
	cx, cy := kb.Width()/2, kb.Height()/2
	convolvedVar, err := c.Conv.Convolve(c.TemplateVariance, sqKernel, cx, cy, false)
	if err != nil {
		return nil, diffimerr.Newf(op, diffimerr.InvalidInput, "convolving template variance by squared kernel: %v", err)
	}

	b := c.ScienceVariance.Bounds()
	data := make([]float64, b.Area())
	idx = 0
	for y := b.MinY; y <= b.MaxY; y++ {
		for x := b.MinX; x <= b.MaxX; x++ {
			data[idx] = c.ScienceVariance.At(x, y) + convolvedVar.At(x, y)
			idx++
		}
	}
	return imageutil.NewDenseImageAt(b.MinX, b.MinY, b.Width(), b.Height(), data)
}
