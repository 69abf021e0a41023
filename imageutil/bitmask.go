package imageutil

import (
	diffim "github.com/LSST/ip-diffim"
	"github.com/LSST/ip-diffim/diffimerr"
)

// Standard mask plane bits, matching the names consumed by
// stampsolution.BuildWithMask: BAD, SAT, NO_DATA, EDGE.
const (
	PlaneBad    uint16 = 1 << 0
	PlaneSat    uint16 = 1 << 1
	PlaneNoData uint16 = 1 << 2
	PlaneEdge   uint16 = 1 << 3
)

var defaultPlanes = map[string]uint16{
	"BAD":     PlaneBad,
	"SAT":     PlaneSat,
	"NO_DATA": PlaneNoData,
	"EDGE":    PlaneEdge,
}

// BitMask is a row-major, uint16-backed diffim.Mask with a fixed set of
// named bit planes.
type BitMask struct {
	originX, originY int
	width, height    int
	data             []uint16
	planes           map[string]uint16
}

// NewBitMask builds a width x height mask with origin (0,0), all bits
// clear, using the standard BAD/SAT/NO_DATA/EDGE plane assignment.
func NewBitMask(width, height int) (*BitMask, error) {
	const op = "imageutil.NewBitMask"
	if width <= 0 || height <= 0 {
		return nil, diffimerr.Newf(op, diffimerr.InvalidInput, "width and height must be positive, got %dx%d", width, height)
	}
	return &BitMask{width: width, height: height, data: make([]uint16, width*height), planes: defaultPlanes}, nil
}

func (m *BitMask) Bounds() diffim.Rect {
	return diffim.NewRect(m.originX, m.originY, m.width, m.height)
}

func (m *BitMask) PlaneBitMask(name string) (uint16, error) {
	bit, ok := m.planes[name]
	if !ok {
		return 0, diffimerr.Newf("imageutil.BitMask.PlaneBitMask", diffimerr.InvalidInput, "unknown mask plane %q", name)
	}
	return bit, nil
}

func (m *BitMask) index(x, y int) (int, bool) {
	lx, ly := x-m.originX, y-m.originY
	if lx < 0 || lx >= m.width || ly < 0 || ly >= m.height {
		return 0, false
	}
	return ly*m.width + lx, true
}

func (m *BitMask) At(x, y int) uint16 {
	idx, ok := m.index(x, y)
	if !ok {
		panic("imageutil.BitMask.At: coordinate out of bounds")
	}
	return m.data[idx]
}

// SetBit ORs bit into the mask value at (x,y).
func (m *BitMask) SetBit(x, y int, bit uint16) {
	idx, ok := m.index(x, y)
	if !ok {
		panic("imageutil.BitMask.SetBit: coordinate out of bounds")
	}
	m.data[idx] |= bit
}

// SetBitRect ORs bit into every pixel within r (clipped to the mask's bounds).
func (m *BitMask) SetBitRect(r diffim.Rect, bit uint16) {
	r = r.Intersect(m.Bounds())
	for y := r.MinY; y <= r.MaxY; y++ {
		for x := r.MinX; x <= r.MaxX; x++ {
			m.SetBit(x, y, bit)
		}
	}
}

// Threshold returns the footprint of pixels whose value bit-ANDs
// non-zero with bitmask.
func (m *BitMask) Threshold(bitmask uint16) diffim.Footprint {
	grid := make([]bool, len(m.data))
	for i, v := range m.data {
		grid[i] = v&bitmask != 0
	}
	return &DenseFootprint{originX: m.originX, originY: m.originY, width: m.width, height: m.height, set: grid}
}
