package rtsgfx

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rtsgfx/backend"
	"github.com/gogpu/rtsgfx/gpucore"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

func TestSceneLifecycle(t *testing.T) {
	r := New(newTestDevice(t))
	if err := r.BeginScene(); !errors.Is(err, ErrSceneState) {
		t.Errorf("BeginScene before Init = %v, want ErrSceneState", err)
	}
	if err := r.Init(320, 240); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer r.Done()

	if err := r.Init(320, 240); !errors.Is(err, ErrSceneState) {
		t.Errorf("second Init = %v, want ErrSceneState", err)
	}
	if err := r.EndScene(); !errors.Is(err, ErrSceneState) {
		t.Errorf("EndScene without BeginScene = %v, want ErrSceneState", err)
	}
	vb := newVertexBuffer(t, r, gpucore.VertexXYZDT1, 3)
	if err := r.CreateCommand(vb, 3, nil, 0); !errors.Is(err, ErrSceneState) {
		t.Errorf("CreateCommand outside scene = %v, want ErrSceneState", err)
	}

	if err := r.BeginScene(); err != nil {
		t.Fatalf("BeginScene: %v", err)
	}
	if err := r.BeginScene(); !errors.Is(err, ErrSceneState) {
		t.Errorf("nested BeginScene = %v, want ErrSceneState", err)
	}
	if err := r.ChangeSize(64, 64); !errors.Is(err, ErrSceneState) {
		t.Errorf("ChangeSize in scene = %v, want ErrSceneState", err)
	}
	if err := r.Flush(true); !errors.Is(err, ErrSceneState) {
		t.Errorf("Flush in scene = %v, want ErrSceneState", err)
	}
	if err := r.EndScene(); err != nil {
		t.Fatalf("EndScene: %v", err)
	}
	if err := r.Flush(true); err != nil {
		t.Errorf("Flush without surface = %v, want nil", err)
	}
	if r.Frame() != 1 {
		t.Errorf("Frame() = %d, want 1", r.Frame())
	}
}

func TestInitErrors(t *testing.T) {
	if err := New(nil).Init(320, 240); !errors.Is(err, ErrNoDevice) {
		t.Errorf("Init without device = %v, want ErrNoDevice", err)
	}
	if err := New(newTestDevice(t)).Init(0, 240); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Init(0, 240) = %v, want ErrInvalidConfig", err)
	}
}

func TestPassOrder(t *testing.T) {
	r, dev := newRecordingRenderer(t, WithShadowMapSize(128))

	rt, err := r.CreateRenderTexture(64, 64)
	if err != nil {
		t.Fatalf("CreateRenderTexture: %v", err)
	}
	index, err := r.CreateRenderTarget(rt)
	if err != nil {
		t.Fatalf("CreateRenderTarget: %v", err)
	}
	caster := newVertexBuffer(t, r, gpucore.VertexXYZT1, 3)
	quad := newVertexBuffer(t, r, gpucore.VertexXYZDT1, 3)

	mustBegin(t, r)
	// Recorded in the reverse of submission order.
	mustDraw(t, r, quad)
	if err := r.SetRenderTarget(index); err != nil {
		t.Fatalf("SetRenderTarget: %v", err)
	}
	mustDraw(t, r, quad)
	r.RestoreRenderTarget()
	if err := r.BeginDrawShadow(true); err != nil {
		t.Fatalf("BeginDrawShadow(light): %v", err)
	}
	mustDraw(t, r, caster)
	r.EndDrawShadow()
	if err := r.BeginDrawShadow(false); err != nil {
		t.Fatalf("BeginDrawShadow: %v", err)
	}
	mustDraw(t, r, caster)
	r.EndDrawShadow()
	mustEnd(t, r)

	want := []string{"shadow", "light", "texture", "main"}
	if got := dev.log.labels(); !slices.Equal(got, want) {
		t.Errorf("passes = %v, want %v", got, want)
	}
	for _, p := range dev.log.passes {
		if p.draws != 1 {
			t.Errorf("%s pass: %d draws, want 1", p.label, p.draws)
		}
	}
	if dev.log.passes[0].desc.ColorAttachments != nil {
		t.Error("shadow pass has a color attachment")
	}
	if dev.log.submits != 1 {
		t.Errorf("submits = %d, want 1", dev.log.submits)
	}
}

func TestSharedBufferDifferentMaterials(t *testing.T) {
	r, dev := newRecordingRenderer(t)
	vb := newVertexBuffer(t, r, gpucore.VertexXYZNDT1, 10)
	ib := newIndexBuffer(t, r, 6)

	lit := gpucore.DefaultMaterial()
	lit.Type = gpucore.MaterialLit

	mustBegin(t, r)
	r.SetMaterial(lit)
	if err := r.CreateCommand(vb, 10, ib, 6); err != nil {
		t.Fatalf("CreateCommand(M1): %v", err)
	}
	r.SetMaterial(gpucore.DefaultMaterial())
	if err := r.CreateCommand(vb, 10, ib, 6); err != nil {
		t.Fatalf("CreateCommand(M2): %v", err)
	}
	if refs := vb.res.Refs(); refs != 4 {
		t.Errorf("vertex buffer refs while recorded = %d, want 4", refs)
	}
	mustEnd(t, r)

	st := r.Stats()
	if st.Draws != 2 || st.PipelineBinds != 2 {
		t.Errorf("draws = %d, binds = %d; want 2, 2", st.Draws, st.PipelineBinds)
	}
	if st.Pipelines != 2 {
		t.Errorf("pipelines = %d, want 2", st.Pipelines)
	}
	main := dev.log.passes[len(dev.log.passes)-1]
	if !slices.Equal(main.indexed, []uint32{6, 6}) {
		t.Errorf("indexed draws = %v, want [6 6]", main.indexed)
	}
	if refs := vb.res.Refs(); refs != 4 {
		t.Errorf("vertex buffer refs while in flight = %d, want 4", refs)
	}
	mustBegin(t, r)
	if refs := vb.res.Refs(); refs != 2 {
		t.Errorf("vertex buffer refs after reclaim = %d, want 2 (pool + buffer)", refs)
	}
	mustEnd(t, r)
}

func TestPipelineBoundOncePerRun(t *testing.T) {
	r, _ := newRecordingRenderer(t)
	vb := newVertexBuffer(t, r, gpucore.VertexXYZDT1, 3)

	mustBegin(t, r)
	for range 3 {
		mustDraw(t, r, vb)
	}
	mustEnd(t, r)

	st := r.Stats()
	if st.Draws != 3 || st.PipelineBinds != 1 {
		t.Errorf("draws = %d, binds = %d; want 3, 1", st.Draws, st.PipelineBinds)
	}
	if st.UniformBytes == 0 {
		t.Error("no uniform bytes packed")
	}
}

func TestSpriteBatching(t *testing.T) {
	r, dev := newRecordingRenderer(t)
	tex := newTexture(t, r, 4, 4)
	other := newTexture(t, r, 4, 4)

	mustBegin(t, r)
	for i := range 10 {
		s := Sprite{X: float32(i), W: 8, H: 8, U1: 1, V1: 1, Color: gpucore.White}
		if err := r.DrawSprite(tex, s); err != nil {
			t.Fatalf("DrawSprite: %v", err)
		}
	}
	if err := r.DrawSprite(other, Sprite{W: 8, H: 8}); err != nil {
		t.Fatalf("DrawSprite: %v", err)
	}
	mustEnd(t, r)

	main := dev.log.passes[0]
	if !slices.Equal(main.indexed, []uint32{60, 6}) {
		t.Errorf("indexed draws = %v, want [60 6]", main.indexed)
	}
}

func TestClipOutsideTargetSkipsDraw(t *testing.T) {
	r, _ := newRecordingRenderer(t)
	vb := newVertexBuffer(t, r, gpucore.VertexXYZDT1, 3)

	mustBegin(t, r)
	r.SetClipRect(gpucore.Rect{X: 1000, Y: 1000, W: 10, H: 10})
	if got := r.GetClipRect(); got.X != 1000 {
		t.Errorf("GetClipRect() = %+v", got)
	}
	mustDraw(t, r, vb)
	mustEnd(t, r)

	if st := r.Stats(); st.Commands != 1 || st.Draws != 0 {
		t.Errorf("commands = %d, draws = %d; want 1, 0", st.Commands, st.Draws)
	}
}

func TestFrameAbandonedOnPipelineFailure(t *testing.T) {
	dev := &recordingDevice{failPipelines: true}
	r := New(&backend.Device{Name: "test", Variant: gputypes.BackendEmpty, Device: dev, Queue: &noop.Queue{}})
	if err := r.Init(320, 240); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer r.Done()
	vb := newVertexBuffer(t, r, gpucore.VertexXYZDT1, 3)

	mustBegin(t, r)
	if err := r.CreateCommand(vb, 3, nil, 0); !errors.Is(err, ErrPipelineCreation) {
		t.Fatalf("CreateCommand = %v, want ErrPipelineCreation", err)
	}
	if err := r.EndScene(); !errors.Is(err, ErrPipelineCreation) {
		t.Errorf("EndScene = %v, want ErrPipelineCreation", err)
	}
	if dev.log.submits != 0 {
		t.Errorf("submits = %d, want 0", dev.log.submits)
	}
	if refs := vb.res.Refs(); refs != 2 {
		t.Errorf("vertex buffer refs = %d, want 2", refs)
	}

	// The renderer stays usable.
	mustBegin(t, r)
	mustEnd(t, r)
}

func TestChangeSizeEmptiesCacheAndPool(t *testing.T) {
	r, _ := newRecordingRenderer(t)
	vb := newVertexBuffer(t, r, gpucore.VertexXYZDT1, 3)

	mustBegin(t, r)
	mustDraw(t, r, vb)
	mustEnd(t, r)
	if r.cache.Len() == 0 || r.pool.Len() == 0 {
		t.Fatal("frame created no pipelines or buffers")
	}

	if err := r.ChangeSize(640, 480); err != nil {
		t.Fatalf("ChangeSize: %v", err)
	}
	if r.cache.Len() != 0 {
		t.Errorf("cache size after ChangeSize = %d, want 0", r.cache.Len())
	}
	if r.pool.Len() != 0 {
		t.Errorf("pool size after ChangeSize = %d, want 0", r.pool.Len())
	}
	if w, h := r.Size(); w != 640 || h != 480 {
		t.Errorf("Size() = %dx%d, want 640x480", w, h)
	}
	if vb.res.Valid() {
		t.Error("vertex buffer survived the pool drain")
	}

	// The buffer is uploaded again on next use.
	mustBegin(t, r)
	mustDraw(t, r, vb)
	mustEnd(t, r)
	if !vb.res.Valid() {
		t.Error("vertex buffer not re-uploaded")
	}
}

func TestDeleteTextureDeferred(t *testing.T) {
	r, _ := newRecordingRenderer(t)
	vb := newVertexBuffer(t, r, gpucore.VertexXYZDT1, 3)
	tex := newTexture(t, r, 2, 2)
	res := tex.res

	mustBegin(t, r)
	if err := r.SetTexture(0, tex); err != nil {
		t.Fatalf("SetTexture: %v", err)
	}
	mustDraw(t, r, vb)
	r.DeleteTexture(tex)
	if !res.Valid() {
		t.Fatal("texture destroyed while a command references it")
	}
	if err := r.SetTexture(0, tex); !errors.Is(err, ErrInvalidTexture) {
		t.Errorf("SetTexture(deleted) = %v, want ErrInvalidTexture", err)
	}
	mustEnd(t, r)
	if !res.Valid() {
		t.Fatal("texture destroyed while its frame is in flight")
	}

	mustBegin(t, r)
	if res.Valid() {
		t.Error("texture alive after the frame was reclaimed")
	}
	mustEnd(t, r)
}

func TestStalledFrameKeepsResources(t *testing.T) {
	r, dev := newRecordingRenderer(t, WithPoolBudget(1))
	vb := newVertexBuffer(t, r, gpucore.VertexXYZDT1, 3)
	tex := newTexture(t, r, 2, 2)
	texRes := tex.res
	dev.queue.stalled = true

	mustBegin(t, r)
	if err := r.SetTexture(0, tex); err != nil {
		t.Fatalf("SetTexture: %v", err)
	}
	mustDraw(t, r, vb)
	vbRes := vb.res
	vb.Delete()
	r.DeleteTexture(tex)
	mustEnd(t, r)

	// The next frame drops the pool's reference on transient buffers.
	mustBegin(t, r)
	if len(r.pending) != 1 {
		t.Fatalf("pending frames = %d, want 1", len(r.pending))
	}
	if !texRes.Valid() {
		t.Error("deleted texture destroyed while its frame is in flight")
	}
	if !vbRes.Valid() {
		t.Error("transient vertex buffer destroyed while its frame is in flight")
	}
	if refs := vbRes.Refs(); refs != 1 {
		t.Errorf("transient vertex buffer refs = %d, want 1 (in-flight frame)", refs)
	}
	mustEnd(t, r)

	dev.queue.stalled = false
	mustBegin(t, r)
	if len(r.pending) != 0 {
		t.Errorf("pending frames = %d, want 0", len(r.pending))
	}
	if texRes.Valid() || vbRes.Valid() {
		t.Errorf("texture valid = %v, vertex buffer valid = %v after reclaim; want false", texRes.Valid(), vbRes.Valid())
	}
	mustEnd(t, r)
}

func TestStalledFrameBlocksBufferReuse(t *testing.T) {
	r, dev := newRecordingRenderer(t)
	vb := newVertexBuffer(t, r, gpucore.VertexXYZDT1, 3)
	dev.queue.stalled = true

	mustBegin(t, r)
	if err := r.DrawSprite(nil, Sprite{W: 1, H: 1}); err != nil {
		t.Fatalf("DrawSprite: %v", err)
	}
	mustEnd(t, r)
	allocs := r.pool.Stats().Allocations

	mustBegin(t, r)
	if err := r.DrawSprite(nil, Sprite{W: 1, H: 1}); err != nil {
		t.Fatalf("DrawSprite: %v", err)
	}
	mustDraw(t, r, vb)
	mustEnd(t, r)
	// Batch vertices, batch indices and uniforms of the first frame are
	// still in flight, so the second frame allocates its own.
	if got := r.pool.Stats().Allocations - allocs; got < 3 {
		t.Errorf("allocations in second frame = %d, want at least 3", got)
	}
}

func TestReclaimCompletedFrames(t *testing.T) {
	r, _ := newRecordingRenderer(t)
	vb := newVertexBuffer(t, r, gpucore.VertexXYZDT1, 3)

	mustBegin(t, r)
	mustDraw(t, r, vb)
	mustEnd(t, r)
	if len(r.pending) != 1 {
		t.Fatalf("pending frames = %d, want 1", len(r.pending))
	}
	mustBegin(t, r)
	if len(r.pending) != 0 {
		t.Errorf("pending frames after BeginScene = %d, want 0", len(r.pending))
	}
	mustEnd(t, r)
}

func TestFillRestoresState(t *testing.T) {
	r, dev := newRecordingRenderer(t)

	mustBegin(t, r)
	r.SetBlendMode(gpucore.BlendAlpha)
	r.SetDepthMode(gpucore.DepthTestWrite)
	before := r.rec.State()
	if err := r.Fill(gpucore.RGBA8(255, 0, 0, 255)); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	after := r.rec.State()
	if after.Blend != before.Blend || after.Depth != before.Depth || after.Ortho != before.Ortho {
		t.Error("Fill did not restore the state")
	}
	mustEnd(t, r)

	if p := dev.log.passes[0]; !slices.Equal(p.indexed, []uint32{6}) {
		t.Errorf("Fill draws = %v, want [6]", p.indexed)
	}
}

func TestMeshPathRestores(t *testing.T) {
	r, _ := newRecordingRenderer(t)
	mustBegin(t, r)
	before := r.rec.State()
	r.BeginDrawMesh(true)
	if s := r.rec.State(); s.Depth != gpucore.DepthTestWrite || s.Material.Type != gpucore.MaterialLit {
		t.Errorf("mesh state = depth %v, material %v", s.Depth, s.Material.Type)
	}
	r.EndDrawMesh()
	after := r.rec.State()
	if after.Depth != before.Depth || after.Material != before.Material || after.Path != before.Path {
		t.Error("EndDrawMesh did not restore the state")
	}
	mustEnd(t, r)
}

func TestBeginDrawShadowWithoutMaps(t *testing.T) {
	r, _ := newRecordingRenderer(t)
	mustBegin(t, r)
	if err := r.BeginDrawShadow(false); !errors.Is(err, ErrSceneState) {
		t.Errorf("BeginDrawShadow = %v, want ErrSceneState", err)
	}
	if err := r.CreateShadowTexture(64); err != nil {
		t.Fatalf("CreateShadowTexture: %v", err)
	}
	if err := r.BeginDrawShadow(false); err != nil {
		t.Errorf("BeginDrawShadow after CreateShadowTexture = %v", err)
	}
	r.EndDrawShadow()
	mustEnd(t, r)
}

func TestTilemapBindsLightMap(t *testing.T) {
	r, _ := newRecordingRenderer(t, WithShadowMapSize(64))
	tiles := newTexture(t, r, 8, 8)

	mustBegin(t, r)
	if err := r.SetMaterialTilemap(tiles); err != nil {
		t.Fatalf("SetMaterialTilemap: %v", err)
	}
	s := r.rec.State()
	_, light := r.targets.ShadowMaps()
	if s.Textures[0] != tiles.res || s.Textures[1] != light.Color() {
		t.Error("tile map does not bind atlas and light map")
	}
	if s.PipelineType() != gpucore.PipelineTileMap {
		t.Errorf("pipeline type = %v, want tile map", s.PipelineType())
	}
	mustEnd(t, r)
}

func TestDeviceLostWithoutResetter(t *testing.T) {
	r, dev := newRecordingRenderer(t)
	tex := newTexture(t, r, 2, 2)
	vb := newVertexBuffer(t, r, gpucore.VertexXYZDT1, 3)

	mustBegin(t, r)
	mustDraw(t, r, vb)
	dev.queue.lost = true
	if err := r.EndScene(); !errors.Is(err, ErrDeviceLost) {
		t.Fatalf("EndScene = %v, want ErrDeviceLost", err)
	}
	if r.state != stateUninitialized {
		t.Errorf("state = %s, want uninitialized", r.state)
	}
	if tex.Valid() {
		t.Error("texture still valid after device loss")
	}

	dev.queue.lost = false
	if err := r.Rebind(r.Device()); err != nil {
		t.Fatalf("Rebind: %v", err)
	}
	if !tex.Valid() {
		t.Error("texture not restored by Rebind")
	}
	mustBegin(t, r)
	mustDraw(t, r, vb)
	mustEnd(t, r)
}

func TestDeviceLostWithResetter(t *testing.T) {
	var calls int
	fresh := &backend.Device{Name: "fresh", Variant: gputypes.BackendEmpty, Device: &recordingDevice{}, Queue: &lossyQueue{}}
	r, dev := newRecordingRenderer(t, WithDeviceResetter(func() (*backend.Device, error) {
		calls++
		return fresh, nil
	}))

	mustBegin(t, r)
	dev.queue.lost = true
	if err := r.EndScene(); !errors.Is(err, ErrDeviceLost) {
		t.Fatalf("EndScene = %v, want ErrDeviceLost", err)
	}
	if calls != 1 {
		t.Errorf("resetter calls = %d, want 1", calls)
	}
	if r.Device() != fresh {
		t.Error("renderer not rebound to the new device")
	}
	if r.state != stateReady {
		t.Errorf("state = %s, want ready", r.state)
	}
	mustBegin(t, r)
	mustEnd(t, r)
}

func TestDeviceLostWhileRecording(t *testing.T) {
	r, dev := newRecordingRenderer(t)

	mustBegin(t, r)
	if err := r.DrawSprite(nil, Sprite{W: 8, H: 8}); err != nil {
		t.Fatalf("DrawSprite: %v", err)
	}
	// The batch uploads at EndScene and hits the lost device there.
	dev.queue.lost = true
	if err := r.EndScene(); !errors.Is(err, ErrDeviceLost) {
		t.Fatalf("EndScene = %v, want ErrDeviceLost", err)
	}
	if r.state != stateUninitialized {
		t.Errorf("state = %s, want uninitialized", r.state)
	}
	if dev.log.submits != 0 {
		t.Errorf("submits = %d, want 0", dev.log.submits)
	}
}

func TestSpriteTextureReachesNextCommand(t *testing.T) {
	r, _ := newRecordingRenderer(t)
	atlas := newTexture(t, r, 4, 4)
	vb := newVertexBuffer(t, r, gpucore.VertexXYZDT1, 3)

	mustBegin(t, r)
	if err := r.DrawSprite(atlas, Sprite{W: 4, H: 4, U1: 1, V1: 1}); err != nil {
		t.Fatalf("DrawSprite: %v", err)
	}
	if err := r.SetTexture(0, atlas); err != nil {
		t.Fatalf("SetTexture: %v", err)
	}
	mustDraw(t, r, vb)

	cmds := r.targets.Main().Commands()
	if len(cmds) != 2 {
		t.Fatalf("commands = %d, want 2", len(cmds))
	}
	for i, cmd := range cmds {
		if cmd.Textures[0] != atlas.res {
			t.Errorf("command %d slot 0 = %p, want the atlas", i, cmd.Textures[0])
		}
	}
	if s := r.rec.State(); s.Textures[0] != nil {
		t.Error("texture binding survived CreateCommand")
	}
	mustEnd(t, r)
}

func TestCallsBeforeInit(t *testing.T) {
	r := New(newTestDevice(t))

	r.SetMaterial(gpucore.DefaultMaterial())
	r.SetVPMatrix(gpucore.Identity())
	r.SetBlendMode(gpucore.BlendAlpha)
	r.SetClipRect(gpucore.Rect{W: 10, H: 10})
	r.BeginDrawMesh(true)
	r.EndDrawMesh()
	if err := r.SetTexture(0, nil); err != nil {
		t.Errorf("SetTexture(nil) = %v", err)
	}

	checks := map[string]error{
		"SetClearColor":       r.SetClearColor(gpucore.Black),
		"BeginDrawShadow":     r.BeginDrawShadow(false),
		"SetMaterialTilemap":  r.SetMaterialTilemap(nil),
		"SetRenderTarget":     r.SetRenderTarget(0),
		"DeleteRenderTarget":  r.DeleteRenderTarget(1),
		"CreateShadowTexture": r.CreateShadowTexture(64),
		"DrawSprite":          r.DrawSprite(nil, Sprite{W: 1, H: 1}),
		"Fill":                r.Fill(gpucore.Black),
		"BeginScene":          r.BeginScene(),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrSceneState) {
			t.Errorf("%s before Init = %v, want ErrSceneState", name, err)
		}
	}
	if _, err := r.CreateRenderTarget(nil); err == nil {
		t.Error("CreateRenderTarget before Init succeeded")
	}
	r.RestoreRenderTarget()

	if err := r.Init(64, 64); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer r.Done()
	if got := r.rec.State().Blend; got != gpucore.BlendNone {
		t.Errorf("blend after Init = %v, want the default", got)
	}
}

func TestDoneReleasesTextures(t *testing.T) {
	r, _ := newRecordingRenderer(t)
	tex := newTexture(t, r, 2, 2)
	r.Done()
	if tex.Valid() {
		t.Error("texture valid after Done")
	}
	if err := r.BeginScene(); !errors.Is(err, ErrSceneState) {
		t.Errorf("BeginScene after Done = %v, want ErrSceneState", err)
	}
}

func TestVertexBufferValidation(t *testing.T) {
	r, _ := newRecordingRenderer(t)
	if _, err := r.NewVertexBuffer(gpucore.VertexXYZDT1, make([]byte, 7), false); !errors.Is(err, ErrInvalidBuffer) {
		t.Errorf("NewVertexBuffer(7 bytes) = %v, want ErrInvalidBuffer", err)
	}
	if _, err := r.NewIndexBuffer(nil, false); !errors.Is(err, ErrInvalidBuffer) {
		t.Errorf("NewIndexBuffer(nil) = %v, want ErrInvalidBuffer", err)
	}

	vb := newVertexBuffer(t, r, gpucore.VertexXYZDT1, 3)
	ib := newIndexBuffer(t, r, 3)
	mustBegin(t, r)
	if err := r.CreateCommand(vb, 4, nil, 0); !errors.Is(err, ErrInvalidBuffer) {
		t.Errorf("CreateCommand(4 of 3 vertices) = %v, want ErrInvalidBuffer", err)
	}
	if err := r.CreateCommand(vb, 3, ib, 6); !errors.Is(err, ErrInvalidBuffer) {
		t.Errorf("CreateCommand(6 of 3 indices) = %v, want ErrInvalidBuffer", err)
	}
	for _, rng := range []gpucore.DrawRange{{Offset: -5}, {Offset: 2}, {Offset: 1, Len: 0}} {
		if err := r.SubmitBuffers(gpucore.PrimitiveTriangles, vb, 3, nil, rng); !errors.Is(err, ErrInvalidBuffer) {
			t.Errorf("SubmitBuffers(3 vertices from %d of 3) = %v, want ErrInvalidBuffer", rng.Offset, err)
		}
	}
	if err := r.SubmitBuffers(gpucore.PrimitiveTriangles, vb, 2, nil, gpucore.DrawRange{Offset: 1}); err != nil {
		t.Errorf("SubmitBuffers(2 vertices from 1 of 3) = %v", err)
	}
	vb.Delete()
	if err := r.CreateCommand(vb, 3, nil, 0); !errors.Is(err, ErrInvalidBuffer) {
		t.Errorf("CreateCommand(deleted) = %v, want ErrInvalidBuffer", err)
	}
	mustEnd(t, r)
}

func TestVertexBufferUpdate(t *testing.T) {
	r, _ := newRecordingRenderer(t)
	vb := newVertexBuffer(t, r, gpucore.VertexXYZDT1, 3)

	mustBegin(t, r)
	mustDraw(t, r, vb)
	first := vb.res
	mustEnd(t, r)

	if err := vb.Update(make([]byte, 6*gpucore.VertexXYZDT1.Stride())); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if vb.Len() != 6 {
		t.Errorf("Len() = %d, want 6", vb.Len())
	}
	mustBegin(t, r)
	mustDraw(t, r, vb)
	mustEnd(t, r)
	if first.Refs() != 1 {
		t.Errorf("old pooled buffer refs = %d, want 1 (pool only)", first.Refs())
	}
}

// ===== Test Helpers =====

func newTestDevice(t *testing.T) *backend.Device {
	t.Helper()
	dev, err := backend.OpenByName(backend.NameEmpty)
	if err != nil {
		t.Fatalf("OpenByName: %v", err)
	}
	t.Cleanup(dev.Close)
	return dev
}

type passLog struct {
	label     string
	desc      *hal.RenderPassDescriptor
	pipelines int
	draws     int
	indexed   []uint32
}

type frameLog struct {
	passes  []*passLog
	submits int
}

func (l *frameLog) labels() []string {
	out := make([]string, len(l.passes))
	for i, p := range l.passes {
		out[i] = p.label
	}
	return out
}

// recordingDevice is a noop device that logs render passes.
type recordingDevice struct {
	noop.Device
	log           frameLog
	queue         *lossyQueue
	failPipelines bool
}

func (d *recordingDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	return &recordingEncoder{CommandEncoder: enc, log: &d.log}, nil
}

func (d *recordingDevice) CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	if d.failPipelines {
		return nil, fmt.Errorf("unsupported pipeline %s", desc.Label)
	}
	return d.Device.CreateRenderPipeline(desc)
}

type recordingEncoder struct {
	hal.CommandEncoder
	log *frameLog
}

func (e *recordingEncoder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	p := &passLog{label: desc.Label, desc: desc}
	e.log.passes = append(e.log.passes, p)
	return &recordingPass{RenderPassEncoder: e.CommandEncoder.BeginRenderPass(desc), pass: p}
}

func (e *recordingEncoder) EndEncoding() (hal.CommandBuffer, error) {
	e.log.submits++
	return e.CommandEncoder.EndEncoding()
}

type recordingPass struct {
	hal.RenderPassEncoder
	pass *passLog
}

func (p *recordingPass) SetPipeline(pl hal.RenderPipeline) {
	p.pass.pipelines++
	p.RenderPassEncoder.SetPipeline(pl)
}

func (p *recordingPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.pass.draws++
	p.RenderPassEncoder.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (p *recordingPass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.pass.draws++
	p.pass.indexed = append(p.pass.indexed, indexCount)
	p.RenderPassEncoder.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

// lossyQueue is a noop queue that reports device loss on demand. A stalled
// queue never reports a submission complete.
type lossyQueue struct {
	noop.Queue
	lost    bool
	stalled bool
}

func (q *lossyQueue) Submit(buffers []hal.CommandBuffer) (uint64, error) {
	if q.lost {
		return 0, hal.ErrDeviceLost
	}
	return q.Queue.Submit(buffers)
}

func (q *lossyQueue) WriteBuffer(buffer hal.Buffer, offset uint64, data []byte) error {
	if q.lost {
		return hal.ErrDeviceLost
	}
	return q.Queue.WriteBuffer(buffer, offset, data)
}

func (q *lossyQueue) PollCompleted() uint64 {
	if q.stalled {
		return 0
	}
	return q.Queue.PollCompleted()
}

func newRecordingRenderer(t *testing.T, opts ...Option) (*Renderer, *recordingDevice) {
	t.Helper()
	dev := &recordingDevice{queue: &lossyQueue{}}
	r := New(&backend.Device{Name: "test", Variant: gputypes.BackendEmpty, Device: dev, Queue: dev.queue}, opts...)
	if err := r.Init(320, 240); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(r.Done)
	return r, dev
}

func newVertexBuffer(t *testing.T, r *Renderer, format gpucore.VertexFormat, n int) *VertexBuffer {
	t.Helper()
	vb, err := r.NewVertexBuffer(format, make([]byte, n*int(format.Stride())), false)
	if err != nil {
		t.Fatalf("NewVertexBuffer: %v", err)
	}
	return vb
}

func newIndexBuffer(t *testing.T, r *Renderer, n int) *IndexBuffer {
	t.Helper()
	indices := make([]uint16, n)
	for i := range indices {
		indices[i] = uint16(i % 3)
	}
	ib, err := r.NewIndexBuffer(indices, false)
	if err != nil {
		t.Fatalf("NewIndexBuffer: %v", err)
	}
	return ib
}

func newTexture(t *testing.T, r *Renderer, w, h int) *Texture {
	t.Helper()
	tex, err := r.CreateTexture(w, h, make([]byte, w*h*4))
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}
	return tex
}

func mustBegin(t *testing.T, r *Renderer) {
	t.Helper()
	if err := r.BeginScene(); err != nil {
		t.Fatalf("BeginScene: %v", err)
	}
}

func mustEnd(t *testing.T, r *Renderer) {
	t.Helper()
	if err := r.EndScene(); err != nil {
		t.Fatalf("EndScene: %v", err)
	}
}

func mustDraw(t *testing.T, r *Renderer, vb *VertexBuffer) {
	t.Helper()
	if err := r.CreateCommand(vb, vb.Len(), nil, 0); err != nil {
		t.Fatalf("CreateCommand: %v", err)
	}
}
