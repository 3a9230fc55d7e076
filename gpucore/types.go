package gpucore

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
)

// MaxTextures is the number of texture slots a command can bind.
const MaxTextures = 8

// Color is a linear RGBA color with float components in [0, 1].
type Color struct {
	R, G, B, A float32
}

// Common colors.
var (
	White       = Color{1, 1, 1, 1}
	Black       = Color{0, 0, 0, 1}
	Transparent = Color{}
)

// RGBA8 builds a color from 8-bit components.
func RGBA8(r, g, b, a uint8) Color {
	return Color{
		R: float32(r) / 255,
		G: float32(g) / 255,
		B: float32(b) / 255,
		A: float32(a) / 255,
	}
}

// GPU converts the color to the backend clear value.
func (c Color) GPU() gputypes.Color {
	return gputypes.Color{R: float64(c.R), G: float64(c.G), B: float64(c.B), A: float64(c.A)}
}

// Vec3 is a three component vector.
type Vec3 struct {
	X, Y, Z float32
}

// Rect is an integer rectangle given by its origin and size.
type Rect struct {
	X, Y, W, H int32
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Intersect returns the overlap of r and o.
func (r Rect) Intersect(o Rect) Rect {
	x0, y0 := max(r.X, o.X), max(r.Y, o.Y)
	x1, y1 := min(r.X+r.W, o.X+o.W), min(r.Y+r.H, o.Y+o.H)
	if x1 <= x0 || y1 <= y0 {
		return Rect{X: x0, Y: y0}
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// DrawRange selects a sub-range of an index (or vertex) stream.
type DrawRange struct {
	Offset int
	Len    int
}

// PrimitiveType is the draw primitive topology.
type PrimitiveType uint8

// Primitive topologies.
const (
	PrimitiveTriangles PrimitiveType = iota
	PrimitiveTriangleStrip
	PrimitiveLines
)

// Topology returns the backend topology for the primitive.
func (p PrimitiveType) Topology() gputypes.PrimitiveTopology {
	switch p {
	case PrimitiveTriangleStrip:
		return gputypes.PrimitiveTopologyTriangleStrip
	case PrimitiveLines:
		return gputypes.PrimitiveTopologyLineList
	default:
		return gputypes.PrimitiveTopologyTriangleList
	}
}

// String returns a human-readable name.
func (p PrimitiveType) String() string {
	switch p {
	case PrimitiveTriangles:
		return "triangles"
	case PrimitiveTriangleStrip:
		return "strip"
	case PrimitiveLines:
		return "lines"
	default:
		return fmt.Sprintf("PrimitiveType(%d)", p)
	}
}

// VertexFormat is a set of vertex components. The order of components in
// memory is fixed: position, normal, color, uv0, uv1.
type VertexFormat uint32

// Vertex components.
const (
	VertexXYZ VertexFormat = 1 << iota
	VertexNormal
	VertexDiffuse
	VertexTex1
	VertexTex2
)

// Common vertex formats.
const (
	VertexXYZD    = VertexXYZ | VertexDiffuse
	VertexXYZT1   = VertexXYZ | VertexTex1
	VertexXYZDT1  = VertexXYZ | VertexDiffuse | VertexTex1
	VertexXYZDT2  = VertexXYZ | VertexDiffuse | VertexTex1 | VertexTex2
	VertexXYZNT1  = VertexXYZ | VertexNormal | VertexTex1
	VertexXYZNDT1 = VertexXYZ | VertexNormal | VertexDiffuse | VertexTex1
)

// Shader locations of the vertex components.
const (
	LocationPosition uint32 = iota
	LocationNormal
	LocationColor
	LocationUV0
	LocationUV1
)

// VertexComponent describes one component of a vertex format.
type VertexComponent struct {
	Flag     VertexFormat
	Format   gputypes.VertexFormat
	Size     uint64
	Location uint32
}

var vertexComponents = [...]VertexComponent{
	{VertexXYZ, gputypes.VertexFormatFloat32x3, 12, LocationPosition},
	{VertexNormal, gputypes.VertexFormatFloat32x3, 12, LocationNormal},
	{VertexDiffuse, gputypes.VertexFormatUnorm8x4, 4, LocationColor},
	{VertexTex1, gputypes.VertexFormatFloat32x2, 8, LocationUV0},
	{VertexTex2, gputypes.VertexFormatFloat32x2, 8, LocationUV1},
}

// Has reports whether all components of c are present in f.
func (f VertexFormat) Has(c VertexFormat) bool {
	return f&c == c
}

// Components returns the components of f in memory order.
func (f VertexFormat) Components() []VertexComponent {
	out := make([]VertexComponent, 0, len(vertexComponents))
	for _, c := range vertexComponents {
		if f.Has(c.Flag) {
			out = append(out, c)
		}
	}
	return out
}

// Stride returns the size of one vertex in bytes.
func (f VertexFormat) Stride() uint64 {
	var n uint64
	for _, c := range vertexComponents {
		if f.Has(c.Flag) {
			n += c.Size
		}
	}
	return n
}

// String returns the component list, e.g. "xyz|diffuse|tex1".
func (f VertexFormat) String() string {
	if f == 0 {
		return "none"
	}
	names := [...]string{"xyz", "normal", "diffuse", "tex1", "tex2"}
	var parts []string
	for i, c := range vertexComponents {
		if f.Has(c.Flag) {
			parts = append(parts, names[i])
		}
	}
	return strings.Join(parts, "|")
}

// ColorMode selects how the texture color combines with the vertex color.
type ColorMode uint8

// Color modes.
const (
	ColorModulate ColorMode = iota
	ColorAdd
	ColorModulate2
	ColorModulate4
)

// AlphaTestMode selects the alpha discard threshold.
type AlphaTestMode uint8

// Alpha test modes.
const (
	AlphaTestNone AlphaTestMode = iota
	AlphaTestGreater0
	AlphaTestGreater1
	AlphaTestGreater254
)

// Threshold returns the fragment discard threshold; -1 disables the test.
func (m AlphaTestMode) Threshold() float32 {
	switch m {
	case AlphaTestGreater0:
		return 0
	case AlphaTestGreater1:
		return 1.0 / 255
	case AlphaTestGreater254:
		return 254.0 / 255
	default:
		return -1
	}
}

// MaterialType selects the shading model of a material.
type MaterialType uint8

// Material types.
const (
	MaterialNone MaterialType = iota
	MaterialLit
	MaterialTileMap
)

// Material describes the surface properties used by lit programs.
type Material struct {
	Type     MaterialType
	Diffuse  Color
	Ambient  Color
	Specular Color
	Emissive Color
	Power    float32
}

// DefaultMaterial returns the unlit white material.
func DefaultMaterial() Material {
	return Material{
		Type:    MaterialNone,
		Diffuse: White,
		Ambient: White,
	}
}

// Light is a directional light.
type Light struct {
	Direction Vec3
	Diffuse   Color
	Ambient   Color
	Specular  Color
}

// DefaultLight returns a white light pointing straight down.
func DefaultLight() Light {
	return Light{
		Direction: Vec3{0, 0, -1},
		Diffuse:   White,
		Ambient:   Color{0.3, 0.3, 0.3, 1},
		Specular:  Black,
	}
}
