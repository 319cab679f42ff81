package detector

import (
	"encoding/binary"
	"image"
	"math"

	"github.com/ayusman/colorhit/internal/config"
	"github.com/ayusman/colorhit/internal/gpu"
)

// UniformSize is the byte size of the uniform block.
const UniformSize = 64

const uniformWords = UniformSize / 4

// Word offsets inside the uniform block.
const (
	uRoiMinX = iota
	uRoiMinY
	uRoiMaxX
	uRoiMaxY
	uRadius
	uColorA
	uColorB
	uThrA
	uThrB = uThrA + 4
	uMask = uThrB + 4
)

// Uniform is the only configuration the kernels see.
type Uniform struct {
	ROI            image.Rectangle
	Radius         float32
	ColorA, ColorB uint32
	ThrA, ThrB     config.Threshold
	Active         TeamMask
}

func (u Uniform) words() [uniformWords]uint32 {
	var w [uniformWords]uint32
	w[uRoiMinX] = uint32(u.ROI.Min.X)
	w[uRoiMinY] = uint32(u.ROI.Min.Y)
	w[uRoiMaxX] = uint32(u.ROI.Max.X)
	w[uRoiMaxY] = uint32(u.ROI.Max.Y)
	w[uRadius] = math.Float32bits(u.Radius)
	w[uColorA] = u.ColorA
	w[uColorB] = u.ColorB
	putThreshold(w[uThrA:uThrA+4], u.ThrA)
	putThreshold(w[uThrB:uThrB+4], u.ThrB)
	w[uMask] = uint32(u.Active & BothTeams)
	return w
}

func putThreshold(dst []uint32, t config.Threshold) {
	dst[0] = math.Float32bits(t.DomThr)
	dst[1] = math.Float32bits(t.SatMin)
	dst[2] = math.Float32bits(t.YMin)
	dst[3] = math.Float32bits(t.YMax)
}

// MarshalBinary encodes the block as 64 little-endian bytes.
func (u Uniform) MarshalBinary() ([]byte, error) {
	w := u.words()
	b := make([]byte, UniformSize)
	for i, v := range w {
		binary.LittleEndian.PutUint32(b[i*4:], v)
	}
	return b, nil
}

// threshold is a classifier gate as the kernels read it.
type threshold [4]float32

func (t threshold) domThr() float32 { return t[0] }
func (t threshold) satMin() float32 { return t[1] }
func (t threshold) yMin() float32   { return t[2] }
func (t threshold) yMax() float32   { return t[3] }

// kernelUniform is the decoded block as seen from inside a kernel.
type kernelUniform struct {
	roi    image.Rectangle
	radius float32
	color  [2]uint32
	thr    [2]threshold
	active uint32
}

func loadUniform(b *gpu.Buffer) kernelUniform {
	var u kernelUniform
	u.roi = image.Rect(int(b.Load(uRoiMinX)), int(b.Load(uRoiMinY)), int(b.Load(uRoiMaxX)), int(b.Load(uRoiMaxY)))
	u.radius = b.LoadFloat32(uRadius)
	u.color[0] = b.Load(uColorA)
	u.color[1] = b.Load(uColorB)
	for i := 0; i < 4; i++ {
		u.thr[0][i] = b.LoadFloat32(uThrA + i)
		u.thr[1][i] = b.LoadFloat32(uThrB + i)
	}
	u.active = b.Load(uMask)
	return u
}

func (u kernelUniform) teamActive(t int) bool {
	return u.active&(1<<t) != 0
}
