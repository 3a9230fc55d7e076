package target

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/rtsgfx/gpucore"
	"github.com/gogpu/rtsgfx/internal/command"
	"github.com/gogpu/rtsgfx/internal/resource"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

func TestOrderedShadowLightTexturesMain(t *testing.T) {
	m, _ := newTestManager(t)

	rtt, err := m.Create(newColor(t, m, 64, 64), nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.CreateShadowMaps(256); err != nil {
		t.Fatalf("CreateShadowMaps: %v", err)
	}

	got := m.Ordered()
	want := []Kind{KindShadow, KindLight, KindTexture, KindMain}
	if len(got) != len(want) {
		t.Fatalf("Ordered() = %d targets, want %d", len(got), len(want))
	}
	for i, tgt := range got {
		if tgt.Kind != want[i] {
			t.Errorf("Ordered()[%d] = %s, want %s", i, tgt.Kind, want[i])
		}
	}
	if got[2].Index != rtt {
		t.Errorf("texture target index = %d, want %d", got[2].Index, rtt)
	}
}

func TestAppendGoesToTargetList(t *testing.T) {
	m, _ := newTestManager(t)
	rtt, err := m.Create(newColor(t, m, 32, 32), nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	vb := resource.New[hal.Buffer](nil, 64, nil)
	c1 := &command.Command{VertexBuffer: vb.Retain()}
	c2 := &command.Command{VertexBuffer: vb.Retain()}
	if err := m.Append(0, c1); err != nil {
		t.Fatalf("Append(0): %v", err)
	}
	if err := m.Append(rtt, c2); err != nil {
		t.Fatalf("Append(rtt): %v", err)
	}
	if err := m.Append(99, &command.Command{}); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("Append(99) = %v, want ErrInvalidTarget", err)
	}

	if cmds := m.Main().Commands(); len(cmds) != 1 || cmds[0] != c1 {
		t.Error("main target list does not hold its command")
	}
	tgt, _ := m.Get(rtt)
	if cmds := tgt.Commands(); len(cmds) != 1 || cmds[0] != c2 {
		t.Error("texture target list does not hold its command")
	}

	m.ClearCommands()
	if len(m.Main().Commands()) != 0 || len(tgt.Commands()) != 0 {
		t.Error("ClearCommands left commands behind")
	}
	if vb.Refs() != 1 {
		t.Errorf("buffer refs after clear = %d, want 1", vb.Refs())
	}
}

func TestCreateRejectsFormatMismatch(t *testing.T) {
	m, dev := newTestManager(t)

	img, err := resource.CreateImage(dev, "bad", 16, 16, gputypes.TextureFormatRGBA16Float, gputypes.TextureUsageRenderAttachment)
	if err != nil {
		t.Fatalf("CreateImage: %v", err)
	}
	if _, err := m.Create(resource.NewTexture(dev, img), nil); !errors.Is(err, ErrFormatMismatch) {
		t.Errorf("Create = %v, want ErrFormatMismatch", err)
	}
	if _, err := m.Create(nil, nil); !errors.Is(err, ErrNoAttachment) {
		t.Errorf("Create(nil) = %v, want ErrNoAttachment", err)
	}
}

func TestDeleteReusesIndexAndRestoresActive(t *testing.T) {
	m, _ := newTestManager(t)
	color := newColor(t, m, 32, 32)

	a, err := m.Create(color, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if color.Refs() != 2 {
		t.Errorf("color refs = %d, want 2", color.Refs())
	}
	if err := m.SetActive(a); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if err := m.Delete(a); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if m.Active() != 0 {
		t.Errorf("Active() = %d after deleting the active target", m.Active())
	}
	if color.Refs() != 1 {
		t.Errorf("color refs after delete = %d, want 1", color.Refs())
	}
	if err := m.SetActive(a); !errors.Is(err, ErrInvalidTarget) {
		t.Errorf("SetActive(deleted) = %v, want ErrInvalidTarget", err)
	}

	b, err := m.Create(color, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b != a {
		t.Errorf("index = %d, want reused %d", b, a)
	}
}

func TestDeleteProtectedTargets(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.CreateShadowMaps(128); err != nil {
		t.Fatalf("CreateShadowMaps: %v", err)
	}
	shadow, light := m.ShadowMaps()

	for _, index := range []int{0, shadow.Index, light.Index} {
		if err := m.Delete(index); !errors.Is(err, ErrInvalidTarget) {
			t.Errorf("Delete(%d) = %v, want ErrInvalidTarget", index, err)
		}
	}

	m.DeleteShadowMaps()
	if s, l := m.ShadowMaps(); s != nil || l != nil {
		t.Error("shadow maps survived DeleteShadowMaps")
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestCreateShadowMapsReplaces(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.CreateShadowMaps(128); err != nil {
		t.Fatalf("CreateShadowMaps: %v", err)
	}
	if err := m.CreateShadowMaps(512); err != nil {
		t.Fatalf("CreateShadowMaps: %v", err)
	}
	if m.Len() != 3 {
		t.Errorf("Len() = %d, want 3", m.Len())
	}
	shadow, light := m.ShadowMaps()
	if w, h := shadow.Size(); w != 512 || h != 512 {
		t.Errorf("shadow size = %dx%d, want 512x512", w, h)
	}
	if light.Color() == nil || light.Depth() == nil {
		t.Error("light map needs color and depth images")
	}
	if shadow.Color() != nil {
		t.Error("shadow map has a color image")
	}
	if err := m.CreateShadowMaps(0); !errors.Is(err, ErrNoAttachment) {
		t.Errorf("CreateShadowMaps(0) = %v, want ErrNoAttachment", err)
	}
}

func TestPassDescriptor(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.CreateShadowMaps(128); err != nil {
		t.Fatalf("CreateShadowMaps: %v", err)
	}
	shadow, light := m.ShadowMaps()

	t.Run("main", func(t *testing.T) {
		desc, err := m.Main().PassDescriptor()
		if err != nil {
			t.Fatalf("PassDescriptor: %v", err)
		}
		if len(desc.ColorAttachments) != 1 {
			t.Fatalf("color attachments = %d, want 1", len(desc.ColorAttachments))
		}
		ca := desc.ColorAttachments[0]
		if ca.LoadOp != gputypes.LoadOpClear || ca.StoreOp != gputypes.StoreOpStore {
			t.Errorf("color ops = %v/%v", ca.LoadOp, ca.StoreOp)
		}
		if ca.ClearValue != gpucore.Black.GPU() {
			t.Errorf("clear = %+v, want black", ca.ClearValue)
		}
		ds := desc.DepthStencilAttachment
		if ds == nil || ds.DepthClearValue != 1 {
			t.Fatalf("depth attachment = %+v", ds)
		}
		if ds.StencilLoadOp != gputypes.LoadOpClear {
			t.Error("stencil format without stencil ops")
		}
	})

	t.Run("shadow", func(t *testing.T) {
		desc, err := shadow.PassDescriptor()
		if err != nil {
			t.Fatalf("PassDescriptor: %v", err)
		}
		if len(desc.ColorAttachments) != 0 {
			t.Error("shadow pass has color attachments")
		}
		ds := desc.DepthStencilAttachment
		if ds == nil || ds.DepthStoreOp != gputypes.StoreOpStore {
			t.Fatalf("shadow depth attachment = %+v", ds)
		}
		if ds.StencilLoadOp != gputypes.LoadOpUndefined {
			t.Error("depth-only format has stencil ops")
		}
	})

	t.Run("light", func(t *testing.T) {
		desc, err := light.PassDescriptor()
		if err != nil {
			t.Fatalf("PassDescriptor: %v", err)
		}
		if desc.ColorAttachments[0].ClearValue != gpucore.White.GPU() {
			t.Error("light map does not clear to white")
		}
	})

	t.Run("no images", func(t *testing.T) {
		m.Reset()
		if _, err := m.Main().PassDescriptor(); !errors.Is(err, ErrNoAttachment) {
			t.Errorf("PassDescriptor after Reset = %v, want ErrNoAttachment", err)
		}
	})
}

func TestSurfaceView(t *testing.T) {
	m, _ := newTestManager(t)
	main := m.Main()
	offscreen := main.Color()

	m.SetSurfaceView(&noop.Resource{})
	if main.Color() != nil {
		t.Error("Color() should be nil while rendering to a surface")
	}
	if _, err := main.PassDescriptor(); err != nil {
		t.Errorf("PassDescriptor with surface: %v", err)
	}

	m.SetSurfaceView(nil)
	if main.Color() != offscreen {
		t.Error("offscreen image not restored")
	}
}

func TestResize(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.Resize(1024, 768); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if w, h := m.Main().Size(); w != 1024 || h != 768 {
		t.Errorf("Size() = %dx%d, want 1024x768", w, h)
	}
	if b := m.Main().Bounds(); b != (gpucore.Rect{W: 1024, H: 768}) {
		t.Errorf("Bounds() = %+v", b)
	}
	if err := m.Resize(0, 10); !errors.Is(err, ErrNoAttachment) {
		t.Errorf("Resize(0, 10) = %v, want ErrNoAttachment", err)
	}
}

func TestReset(t *testing.T) {
	m, _ := newTestManager(t)
	color := newColor(t, m, 16, 16)
	if _, err := m.Create(color, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.CreateShadowMaps(64); err != nil {
		t.Fatalf("CreateShadowMaps: %v", err)
	}

	m.Reset()
	if m.Len() != 1 {
		t.Errorf("Len() after Reset = %d, want 1", m.Len())
	}
	if s, l := m.ShadowMaps(); s != nil || l != nil {
		t.Error("shadow maps survived Reset")
	}
	if color.Refs() != 1 {
		t.Errorf("color refs after Reset = %d, want 1", color.Refs())
	}
	if m.Main().Color() != nil {
		t.Error("main image survived Reset")
	}
}

// ===== Test Helpers =====

func newTestManager(t *testing.T) (*Manager, hal.Device) {
	t.Helper()
	dev := &noop.Device{}
	m := NewManager(dev, Config{
		ColorFormat:  gputypes.TextureFormatBGRA8Unorm,
		DepthFormat:  gputypes.TextureFormatDepth24PlusStencil8,
		ShadowFormat: gputypes.TextureFormatDepth32Float,
	})
	if err := m.Resize(320, 240); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	return m, dev
}

func newColor(t *testing.T, m *Manager, w, h uint32) *resource.Texture {
	t.Helper()
	img, err := resource.CreateImage(m.device, "color", w, h, m.cfg.ColorFormat,
		gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageTextureBinding)
	if err != nil {
		t.Fatalf("CreateImage: %v", err)
	}
	return resource.NewTexture(m.device, img)
}
