package detector

import (
	"fmt"

	"github.com/ayusman/colorhit/internal/gpu"
)

// Seed and stats register layout, three words per team.
const (
	regKey = 0
	regX   = 1
	regY   = 2

	statCount = 0
	statSumX  = 1
	statSumY  = 2

	regWords = 3
)

// Staging layout: best A, best B, stats A, stats B, grid counter.
const (
	stageBest  = 0
	stageStats = 2 * regWords
	stageGrid  = 4 * regWords
	stageWords = stageGrid + 1
)

// Registers is a host copy of the result registers of one scan.
type Registers struct {
	Best  [2][regWords]uint32
	Stats [2][regWords]uint32
	Grid  uint32
}

// Pack owns the buffers of one detection context.
type Pack struct {
	device  *gpu.Device
	uniform *gpu.Buffer
	best    [2]*gpu.Buffer
	stats   [2]*gpu.Buffer
	grid    *gpu.Buffer
	stage   *gpu.Buffer

	// cells holds one (key, x, y) candidate per team per seeding cell.
	cells *gpu.Buffer
}

func newPack(d *gpu.Device, label string) (*Pack, error) {
	p := &Pack{device: d}
	var err error
	create := func(name string, words int, usage gpu.BufferUsage) *gpu.Buffer {
		if err != nil {
			return nil
		}
		var b *gpu.Buffer
		b, err = d.CreateBuffer(gpu.BufferDescriptor{Label: label + "/" + name, Words: words, Usage: usage})
		return b
	}

	reg := gpu.UsageStorage | gpu.UsageCopySrc | gpu.UsageCopyDst
	p.uniform = create("uniform", uniformWords, gpu.UsageUniform|gpu.UsageCopyDst)
	p.best[0] = create("bestA", regWords, reg)
	p.best[1] = create("bestB", regWords, reg)
	p.stats[0] = create("statsA", regWords, reg)
	p.stats[1] = create("statsB", regWords, reg)
	p.grid = create("grid", 1, reg)
	p.stage = create("stage", stageWords, gpu.UsageMapRead|gpu.UsageCopyDst)
	if err != nil {
		p.Destroy()
		return nil, err
	}
	return p, nil
}

// ensureCells grows the candidate scratch buffer to hold n cells per team.
func (p *Pack) ensureCells(n int) error {
	words := 2 * n * regWords
	if p.cells != nil && p.cells.Len() >= words {
		return nil
	}
	if p.cells != nil {
		p.cells.Destroy()
		p.cells = nil
	}
	b, err := p.device.CreateBuffer(gpu.BufferDescriptor{Label: "cells", Words: words, Usage: gpu.UsageStorage})
	if err != nil {
		return fmt.Errorf("seed cells: %w", err)
	}
	p.cells = b
	return nil
}

// ResetScan zeroes the seed and stats registers and the grid counter.
func (p *Pack) ResetScan(q *gpu.Queue) error {
	var zero [regWords]uint32
	for t := 0; t < 2; t++ {
		if err := q.WriteBuffer(p.best[t], 0, zero[:]); err != nil {
			return fmt.Errorf("reset best: %w", err)
		}
		if err := q.WriteBuffer(p.stats[t], 0, zero[:]); err != nil {
			return fmt.Errorf("reset stats: %w", err)
		}
	}
	if err := q.WriteBuffer(p.grid, 0, zero[:1]); err != nil {
		return fmt.Errorf("reset grid: %w", err)
	}
	return nil
}

// WriteUniform uploads the scan configuration.
func (p *Pack) WriteUniform(q *gpu.Queue, u Uniform) error {
	w := u.words()
	return q.WriteBuffer(p.uniform, 0, w[:])
}

func (p *Pack) encodeReadBack(enc *gpu.CommandEncoder) {
	for t := 0; t < 2; t++ {
		enc.CopyBufferToBuffer(p.best[t], 0, p.stage, stageBest+t*regWords, regWords)
		enc.CopyBufferToBuffer(p.stats[t], 0, p.stage, stageStats+t*regWords, regWords)
	}
	enc.CopyBufferToBuffer(p.grid, 0, p.stage, stageGrid, 1)
}

// ReadBack copies the registers into the staging buffer, waits for the map and unmaps
// before returning.
func (p *Pack) ReadBack(q *gpu.Queue) (Registers, error) {
	enc := p.device.NewCommandEncoder("readback")
	p.encodeReadBack(enc)
	if err := q.Submit(enc.Finish()); err != nil {
		return Registers{}, err
	}
	return p.mapStage()
}

func (p *Pack) mapStage() (Registers, error) {
	var r Registers
	if err := <-p.stage.MapAsync(); err != nil {
		return r, fmt.Errorf("map staging: %w", err)
	}
	defer p.stage.Unmap()

	w := p.stage.Mapped()
	for t := 0; t < 2; t++ {
		copy(r.Best[t][:], w[stageBest+t*regWords:])
		copy(r.Stats[t][:], w[stageStats+t*regWords:])
	}
	r.Grid = w[stageGrid]
	return r, nil
}

// Destroy releases every buffer of the pack.
func (p *Pack) Destroy() {
	for _, b := range []*gpu.Buffer{p.uniform, p.best[0], p.best[1], p.stats[0], p.stats[1], p.grid, p.stage, p.cells} {
		if b != nil {
			b.Destroy()
		}
	}
}
