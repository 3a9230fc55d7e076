package rtsgfx

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/rtsgfx/gpucore"
	"github.com/gogpu/rtsgfx/internal/command"
	"github.com/gogpu/rtsgfx/internal/pool"
	"github.com/gogpu/rtsgfx/internal/resource"
)

// gpuData is CPU-side buffer data uploaded lazily into a pooled buffer.
// The upload happens on first use and again after Update or when a device
// reset or resize destroyed the pooled buffer.
type gpuData struct {
	data    []byte
	dynamic bool
	usage   pool.Usage

	res     *resource.Buffer
	deleted bool
}

func (b *gpuData) update(data []byte) {
	b.data = append(b.data[:0], data...)
	if b.res != nil {
		b.res.MarkDirty()
	}
}

// prepare returns the pooled buffer holding the current data.
func (b *gpuData) prepare(p *pool.Pool) (*resource.Buffer, error) {
	if b.deleted {
		return nil, fmt.Errorf("%w: deleted", ErrInvalidBuffer)
	}
	if b.res != nil && b.res.Valid() && !b.res.Dirty() {
		return b.res, nil
	}
	b.res.Release()
	b.res = nil

	e, err := p.PrepareBuffer(b.data, uint64(len(b.data)), b.dynamic, b.usage)
	if err != nil {
		return nil, err
	}
	b.res = e.Resource().Retain()
	b.res.ClearDirty()
	return b.res, nil
}

func (b *gpuData) delete() {
	if b.deleted {
		return
	}
	b.deleted = true
	b.res.Release()
	b.res = nil
	b.data = nil
}

// VertexBuffer holds interleaved vertices of one format.
type VertexBuffer struct {
	gpuData
	format gpucore.VertexFormat
}

// IndexBuffer holds 16-bit indices.
type IndexBuffer struct {
	gpuData
	count int
}

// NewVertexBuffer creates a vertex buffer of the given format. Dynamic
// buffers are expected to change every frame and draw from a separate pool
// bucket.
func (r *Renderer) NewVertexBuffer(format gpucore.VertexFormat, data []byte, dynamic bool) (*VertexBuffer, error) {
	if err := checkVertices(format, data); err != nil {
		return nil, err
	}
	return &VertexBuffer{
		gpuData: gpuData{data: append([]byte(nil), data...), dynamic: dynamic, usage: pool.UsageVertex},
		format:  format,
	}, nil
}

func checkVertices(format gpucore.VertexFormat, data []byte) error {
	stride := format.Stride()
	if stride == 0 || len(data) == 0 || uint64(len(data))%stride != 0 {
		return fmt.Errorf("%w: %d bytes of %s vertices", ErrInvalidBuffer, len(data), format)
	}
	return nil
}

// Format returns the vertex format.
func (b *VertexBuffer) Format() gpucore.VertexFormat {
	return b.format
}

// Len returns the number of vertices.
func (b *VertexBuffer) Len() int {
	return len(b.data) / int(b.format.Stride())
}

// Update replaces the vertices. The new data is uploaded on next use.
func (b *VertexBuffer) Update(data []byte) error {
	if b.deleted {
		return fmt.Errorf("%w: deleted", ErrInvalidBuffer)
	}
	if err := checkVertices(b.format, data); err != nil {
		return err
	}
	b.update(data)
	return nil
}

// Delete releases the buffer. Commands already recorded keep it alive until
// the end of the frame.
func (b *VertexBuffer) Delete() {
	b.delete()
}

// NewIndexBuffer creates an index buffer.
func (r *Renderer) NewIndexBuffer(indices []uint16, dynamic bool) (*IndexBuffer, error) {
	if len(indices) == 0 {
		return nil, fmt.Errorf("%w: no indices", ErrInvalidBuffer)
	}
	return &IndexBuffer{
		gpuData: gpuData{data: indexBytes(nil, indices), dynamic: dynamic, usage: pool.UsageIndex},
		count:   len(indices),
	}, nil
}

func indexBytes(dst []byte, indices []uint16) []byte {
	dst = dst[:0]
	for _, v := range indices {
		dst = binary.LittleEndian.AppendUint16(dst, v)
	}
	return dst
}

// Len returns the number of indices.
func (b *IndexBuffer) Len() int {
	return b.count
}

// Update replaces the indices.
func (b *IndexBuffer) Update(indices []uint16) error {
	if b.deleted {
		return fmt.Errorf("%w: deleted", ErrInvalidBuffer)
	}
	if len(indices) == 0 {
		return fmt.Errorf("%w: no indices", ErrInvalidBuffer)
	}
	b.update(indexBytes(make([]byte, 0, len(indices)*2), indices))
	b.count = len(indices)
	return nil
}

// Delete releases the buffer.
func (b *IndexBuffer) Delete() {
	b.delete()
}

// CreateCommand records a triangle list draw of vertices from vb, indexed
// by the first indices entries of ib when ib is not nil. The command
// captures the current state; texture bindings are cleared afterwards.
func (r *Renderer) CreateCommand(vb *VertexBuffer, vertices int, ib *IndexBuffer, indices int) error {
	return r.SubmitBuffers(gpucore.PrimitiveTriangles, vb, vertices, ib, gpucore.DrawRange{Len: indices})
}

// SubmitBuffers records a draw of any primitive type. With ib the draw
// covers rng of the index stream; without it rng.Offset is the first
// vertex.
func (r *Renderer) SubmitBuffers(prim gpucore.PrimitiveType, vb *VertexBuffer, vertices int, ib *IndexBuffer, rng gpucore.DrawRange) error {
	if r.state != stateScene {
		return fmt.Errorf("%w: draw outside a scene", ErrSceneState)
	}
	if vb == nil {
		return fmt.Errorf("%w: nil vertex buffer", ErrInvalidBuffer)
	}
	if vertices <= 0 || vertices > vb.Len() {
		return fmt.Errorf("%w: %d vertices of %d", ErrInvalidBuffer, vertices, vb.Len())
	}
	indexed := ib != nil && rng.Len > 0
	if !indexed && (rng.Offset < 0 || rng.Offset+vertices > vb.Len()) {
		return fmt.Errorf("%w: vertices %d+%d of %d", ErrInvalidBuffer, rng.Offset, vertices, vb.Len())
	}
	vres, err := vb.prepare(r.pool)
	if err != nil {
		return err
	}
	d := command.Draw{
		Primitive:   prim,
		Format:      vb.format,
		Vertices:    vres,
		VertexCount: vertices,
		Base:        rng.Offset,
	}
	if indexed {
		if rng.Offset < 0 || rng.Offset+rng.Len > ib.Len() {
			return fmt.Errorf("%w: indices %d+%d of %d", ErrInvalidBuffer, rng.Offset, rng.Len, ib.Len())
		}
		ires, err := ib.prepare(r.pool)
		if err != nil {
			return err
		}
		d.Indices, d.IndexCount = ires, rng.Len
	}
	_, err = r.rec.CreateCommand(d)
	return err
}
