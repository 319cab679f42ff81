package detector

import (
	"image"
	"math"

	"github.com/ayusman/colorhit/internal/config"
	"github.com/ayusman/colorhit/internal/gpu"
)

// RefineTile is the side of a refinement tile in pixels.
const RefineTile = 8

// GridStride returns the seeding cell side for a search radius.
func GridStride(radius float32) int {
	s := int(math.Round(2 * float64(radius) / 3))
	if s < 1 {
		return 1
	}
	return s
}

// CellGrid returns the number of seeding cells along each axis of roi.
func CellGrid(roi image.Rectangle, stride int) (nx, ny int) {
	return ceilDiv(roi.Dx(), stride), ceilDiv(roi.Dy(), stride)
}

// TileGrid returns the number of refinement tiles along each axis of roi.
func TileGrid(roi image.Rectangle) (nx, ny int) {
	return ceilDiv(roi.Dx(), RefineTile), ceilDiv(roi.Dy(), RefineTile)
}

func ceilDiv(n, d int) int {
	c := (n + d - 1) / d
	if c < 1 {
		return 1
	}
	return c
}

// PackKey combines a score in (0,1] with a cell index. Any score yields a key of at
// least 1<<16, so a key of zero always means no candidate.
func PackKey(score float64, cell int) uint32 {
	s := math.Round(score * 65535)
	if s < 1 {
		s = 1
	}
	if s > 65535 {
		s = 65535
	}
	return uint32(s)<<16 | uint32(cell)&0xFFFF
}

// KeyScore recovers the normalized score of a packed key.
func KeyScore(key uint32) float64 {
	return float64(key>>16) / 65535
}

// classify reports whether a linear RGB texel matches the palette color under t.
func classify(c [4]float32, color uint32, t threshold) bool {
	r, g, b := c[0], c[1], c[2]
	hi := max(r, g, b)
	if hi <= 0 {
		return false
	}
	lo := min(r, g, b)

	var dom float32
	switch color {
	case config.Red:
		dom = r - max(g, b)
	case config.Green:
		dom = g - max(r, b)
	case config.Blue:
		dom = b - max(r, g)
	case config.Yellow:
		dom = min(r, g) - b
	default:
		return false
	}

	sat := (hi - lo) / hi
	luma := 0.2126*r + 0.7152*g + 0.0722*b
	return dom > t.domThr() && sat > t.satMin() && luma >= t.yMin() && luma <= t.yMax()
}

func cellIndexBase(team, cells, cell int) int {
	return (team*cells + cell) * regWords
}

// seedKernel scores a disc around each cell center and installs the best candidate per
// team with an atomic max on the packed key.
func seedKernel(frame *gpu.Texture, p *Pack) gpu.Kernel {
	return func(wg gpu.Workgroup) {
		u := loadUniform(p.uniform)
		stride := GridStride(u.radius)
		nx, ny := CellGrid(u.roi, stride)
		if wg.X >= nx || wg.Y >= ny {
			return
		}
		cell := wg.Y*nx + wg.X
		cells := nx * ny

		cx := min(u.roi.Min.X+wg.X*stride+stride/2, u.roi.Max.X-1)
		cy := min(u.roi.Min.Y+wg.Y*stride+stride/2, u.roi.Max.Y-1)
		rad := int(u.radius)
		step := max(1, rad/6)
		r2 := u.radius * u.radius

		var (
			samples int
			matches [2]int
			sumX    [2]int
			sumY    [2]int
		)
		for dy := -rad; dy <= rad; dy += step {
			y := cy + dy
			if y < u.roi.Min.Y || y >= u.roi.Max.Y {
				continue
			}
			for dx := -rad; dx <= rad; dx += step {
				x := cx + dx
				if x < u.roi.Min.X || x >= u.roi.Max.X || float32(dx*dx+dy*dy) > r2 {
					continue
				}
				samples++
				c := frame.Load(x, y)
				for t := 0; t < 2; t++ {
					if u.teamActive(t) && classify(c, u.color[t], u.thr[t]) {
						matches[t]++
						sumX[t] += x
						sumY[t] += y
					}
				}
			}
		}

		for t := 0; t < 2; t++ {
			base := cellIndexBase(t, cells, cell)
			if matches[t] == 0 {
				p.cells.Store(base+regKey, 0)
				continue
			}
			key := PackKey(float64(matches[t])/float64(samples), cell)
			m := float64(matches[t])
			p.cells.Store(base+regX, uint32(math.Round(float64(sumX[t])/m)))
			p.cells.Store(base+regY, uint32(math.Round(float64(sumY[t])/m)))
			p.cells.Store(base+regKey, key)
			p.best[t].Max(regKey, key)
		}
	}
}

// resolveKernel copies the position of the winning cell into the seed register. Among
// cells holding the winning key the highest index wins.
func resolveKernel(p *Pack) gpu.Kernel {
	return func(gpu.Workgroup) {
		u := loadUniform(p.uniform)
		nx, ny := CellGrid(u.roi, GridStride(u.radius))
		cells := nx * ny
		for t := 0; t < 2; t++ {
			if !u.teamActive(t) {
				continue
			}
			key := p.best[t].Load(regKey)
			if key == 0 {
				continue
			}
			for c := cells - 1; c >= 0; c-- {
				base := cellIndexBase(t, cells, c)
				if p.cells.Load(base+regKey) != key {
					continue
				}
				p.best[t].Store(regX, p.cells.Load(base+regX))
				p.best[t].Store(regY, p.cells.Load(base+regY))
				break
			}
		}
	}
}

// refineKernel accumulates matching pixels within radius of each seed. The tile that
// completes the grid writes the centroid back into the seed register.
func refineKernel(frame *gpu.Texture, p *Pack) gpu.Kernel {
	return func(wg gpu.Workgroup) {
		u := loadUniform(p.uniform)
		tx, ty := TileGrid(u.roi)
		tiles := uint32(tx * ty)

		if wg.X < tx && wg.Y < ty {
			tile := image.Rect(
				u.roi.Min.X+wg.X*RefineTile, u.roi.Min.Y+wg.Y*RefineTile,
				u.roi.Min.X+(wg.X+1)*RefineTile, u.roi.Min.Y+(wg.Y+1)*RefineTile,
			).Intersect(u.roi)
			for t := 0; t < 2; t++ {
				if u.teamActive(t) {
					refineTile(frame, p, u, t, tile)
				}
			}
		}

		if p.grid.Add(0, 1)+1 != tiles {
			return
		}
		for t := 0; t < 2; t++ {
			n := p.stats[t].Load(statCount)
			if n == 0 {
				continue
			}
			p.best[t].Store(regX, uint32(math.Round(float64(p.stats[t].Load(statSumX))/float64(n))))
			p.best[t].Store(regY, uint32(math.Round(float64(p.stats[t].Load(statSumY))/float64(n))))
		}
	}
}

func refineTile(frame *gpu.Texture, p *Pack, u kernelUniform, t int, tile image.Rectangle) {
	if p.best[t].Load(regKey) == 0 {
		return
	}
	sx := int(p.best[t].Load(regX))
	sy := int(p.best[t].Load(regY))
	r2 := u.radius * u.radius

	// nearest tile point to the seed
	nx := min(max(sx, tile.Min.X), tile.Max.X-1)
	ny := min(max(sy, tile.Min.Y), tile.Max.Y-1)
	if float32((nx-sx)*(nx-sx)+(ny-sy)*(ny-sy)) > r2 {
		return
	}

	var count, sumX, sumY uint32
	for y := tile.Min.Y; y < tile.Max.Y; y++ {
		for x := tile.Min.X; x < tile.Max.X; x++ {
			if float32((x-sx)*(x-sx)+(y-sy)*(y-sy)) > r2 {
				continue
			}
			if classify(frame.Load(x, y), u.color[t], u.thr[t]) {
				count++
				sumX += uint32(x)
				sumY += uint32(y)
			}
		}
	}
	if count == 0 {
		return
	}
	p.stats[t].Add(statCount, count)
	p.stats[t].Add(statSumX, sumX)
	p.stats[t].Add(statSumY, sumY)
}

var paletteTint = [config.PaletteSize][4]uint8{
	config.Red:    {255, 48, 48, 255},
	config.Green:  {48, 255, 48, 255},
	config.Blue:   {48, 96, 255, 255},
	config.Yellow: {255, 230, 32, 255},
}

const markerRadius = 3

// debugKernel renders matches in their team tint over a dimmed frame, with a white
// marker on each seed. One workgroup covers one tile of the whole frame.
func debugKernel(frame, mask *gpu.Texture, p *Pack) gpu.Kernel {
	return func(wg gpu.Workgroup) {
		u := loadUniform(p.uniform)
		var seeds [2]image.Point
		var hasSeed [2]bool
		for t := 0; t < 2; t++ {
			if u.teamActive(t) && p.best[t].Load(regKey) != 0 {
				hasSeed[t] = true
				seeds[t] = image.Pt(int(p.best[t].Load(regX)), int(p.best[t].Load(regY)))
			}
		}

		x0, y0 := wg.X*RefineTile, wg.Y*RefineTile
		x1 := min(x0+RefineTile, frame.Width())
		y1 := min(y0+RefineTile, frame.Height())
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				mask.Store(x, y, debugTexel(frame, u, seeds, hasSeed, x, y))
			}
		}
	}
}

func debugTexel(frame *gpu.Texture, u kernelUniform, seeds [2]image.Point, hasSeed [2]bool, x, y int) [4]uint8 {
	for t := 0; t < 2; t++ {
		if !hasSeed[t] {
			continue
		}
		dx, dy := x-seeds[t].X, y-seeds[t].Y
		if (dx == 0 && abs(dy) <= markerRadius) || (dy == 0 && abs(dx) <= markerRadius) {
			return [4]uint8{255, 255, 255, 255}
		}
	}

	raw := frame.LoadRaw(x, y)
	inside := image.Pt(x, y).In(u.roi)
	if inside {
		c := frame.Load(x, y)
		for t := 0; t < 2; t++ {
			if u.teamActive(t) && u.color[t] < config.PaletteSize && classify(c, u.color[t], u.thr[t]) {
				return paletteTint[u.color[t]]
			}
		}
		return [4]uint8{raw[0] / 3, raw[1] / 3, raw[2] / 3, 255}
	}
	return [4]uint8{raw[0] / 6, raw[1] / 6, raw[2] / 6, 255}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
