package gpu

import "fmt"

type command struct {
	name    string
	buffers []*Buffer
	dst     *Buffer
	texture *Texture
	run     func(q *Queue) error
}

// CommandEncoder records dispatches and copies for a single submission.
type CommandEncoder struct {
	label string
	cmds  []command
}

// CommandBuffer is a finished, submittable command list.
type CommandBuffer struct {
	label string
	cmds  []command
}

// NewCommandEncoder starts recording a command buffer.
func (d *Device) NewCommandEncoder(label string) *CommandEncoder {
	return &CommandEncoder{label: label}
}

// Dispatch records a grid of nx by ny workgroups. uses lists every buffer the kernel
// binds so that submission can reject destroyed or mapped resources.
func (e *CommandEncoder) Dispatch(label string, nx, ny int, k Kernel, uses ...*Buffer) {
	if nx < 1 {
		nx = 1
	}
	if ny < 1 {
		ny = 1
	}
	e.cmds = append(e.cmds, command{
		name:    label,
		buffers: uses,
		run: func(q *Queue) error {
			return q.dispatch(label, nx, ny, k)
		},
	})
}

// CopyBufferToBuffer records a word copy between buffers.
func (e *CommandEncoder) CopyBufferToBuffer(src *Buffer, srcOffset int, dst *Buffer, dstOffset, words int) {
	e.cmds = append(e.cmds, command{
		name:    fmt.Sprintf("copy %s->%s", src.label, dst.label),
		buffers: []*Buffer{src},
		dst:     dst,
		run: func(q *Queue) error {
			if srcOffset+words > src.Len() || dstOffset+words > dst.Len() {
				return fmt.Errorf("copy %s->%s: %d words out of range", src.label, dst.label, words)
			}
			for i := 0; i < words; i++ {
				dst.Store(dstOffset+i, src.Load(srcOffset+i))
			}
			return nil
		},
	})
}

// ClearTexture records a clear of t to transparent black.
func (e *CommandEncoder) ClearTexture(t *Texture) {
	e.cmds = append(e.cmds, command{
		name:    "clear " + t.label,
		texture: t,
		run: func(q *Queue) error {
			clear(t.pix)
			return nil
		},
	})
}

// Finish ends recording.
func (e *CommandEncoder) Finish() *CommandBuffer {
	cb := &CommandBuffer{label: e.label, cmds: e.cmds}
	e.cmds = nil
	return cb
}

func (cb *CommandBuffer) validate() error {
	for _, c := range cb.cmds {
		for _, b := range c.buffers {
			if b.destroyed.Load() {
				return fmt.Errorf("%s: buffer %q: %w", c.name, b.label, ErrDestroyed)
			}
			if b.IsMapped() {
				return fmt.Errorf("%s: buffer %q: %w", c.name, b.label, ErrBufferMapped)
			}
		}
		if c.dst != nil {
			if err := checkWritable(c.dst); err != nil {
				return fmt.Errorf("%s: %w", c.name, err)
			}
		}
		if c.texture != nil && c.texture.IsDestroyed() {
			return fmt.Errorf("%s: texture %q: %w", c.name, c.texture.label, ErrDestroyed)
		}
	}
	return nil
}
