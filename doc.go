// Package rtsgfx is the rendering core of a real-time strategy engine.
//
// # Overview
//
// Game code draws through a Renderer: it sets render state (matrices,
// material, blend, depth, textures) and submits geometry. The renderer
// records each draw as a self-contained command, resolves the pipeline for
// the state through a cache, and at the end of the frame submits every
// render target's command list in one command buffer.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/rtsgfx"
//		"github.com/gogpu/rtsgfx/backend"
//		_ "github.com/gogpu/wgpu/hal/noop"
//	)
//
//	dev, err := backend.Open()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
//	r := rtsgfx.New(dev)
//	if err := r.Init(1024, 768); err != nil {
//		log.Fatal(err)
//	}
//	defer r.Done()
//
//	r.BeginScene()
//	r.SetVPMatrix(camera)
//	r.CreateCommand(vb, vb.Len(), ib, ib.Len())
//	if err := r.EndScene(); err != nil {
//		log.Print(err)
//	}
//	r.Flush(true)
//
// # Frame Lifecycle
//
// A Renderer is uninitialized until Init, ready between scenes and in
// scene between BeginScene and EndScene. Draws are only accepted in a
// scene. EndScene submits the shadow map, the light map, texture targets
// and finally the default target, each as one render pass.
//
// A frame either submits completely or not at all: when a pipeline cannot
// be created (after one fallback to the default program) or a buffer
// cannot be allocated, EndScene returns the error and drops the frame.
//
// # Batching
//
// Sprites and Fill go through a batch that merges consecutive quads while
// the state stays the same. Any state change closes the batch. CreateCommand
// always records one command.
//
// # Buffers
//
// Geometry is uploaded into pooled GPU buffers bucketed by usage and size.
// Buffers idle for longer than WithMaxBufferLife frames are destroyed.
//
// # Device Loss
//
// When the backend reports device loss every device object is dropped and
// the renderer returns to the uninitialized state. With WithDeviceResetter
// it reopens a device and reinitializes itself; textures created from
// pixels are restored.
//
// # Logging
//
// The package is silent by default. SetLogger or WithLogger install an
// slog logger.
package rtsgfx

// Version information
const (
	// Version is the current version of the library
	Version = "0.3.0"

	// VersionMajor is the major version
	VersionMajor = 0

	// VersionMinor is the minor version
	VersionMinor = 3

	// VersionPatch is the patch version
	VersionPatch = 0
)
