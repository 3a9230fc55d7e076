// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not
	// registered or exposes no adapter.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrUnknownBackend is returned for a name OpenByName does not know.
	ErrUnknownBackend = errors.New("backend: unknown backend name")

	// ErrNilProvider is returned when a nil DeviceProvider is passed.
	ErrNilProvider = errors.New("backend: nil DeviceProvider")

	// ErrNotHAL is returned when a provider's device or queue is not a HAL
	// object.
	ErrNotHAL = errors.New("backend: provider does not expose HAL types")
)

// Device is an open logical device and its queue.
type Device struct {
	// Name is the backend name, or "external" for provided devices.
	Name    string
	Variant gputypes.Backend
	Info    gputypes.AdapterInfo

	Device hal.Device
	Queue  hal.Queue

	// SurfaceFormat is the host's preferred color format, or
	// TextureFormatUndefined when unknown.
	SurfaceFormat gputypes.TextureFormat

	instance hal.Instance
	adapter  hal.Adapter
	external bool
}

// External reports whether the device belongs to a host application.
func (d *Device) External() bool {
	return d.external
}

// Close destroys the device, adapter and instance. Provided devices are
// left alive.
func (d *Device) Close() {
	if d == nil || d.external {
		return
	}
	if d.Device != nil {
		d.Device.Destroy()
		d.Device, d.Queue = nil, nil
	}
	if d.adapter != nil {
		d.adapter.Destroy()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
}

// Open opens a device on the best registered backend.
func Open() (*Device, error) {
	name := Best()
	if name == "" {
		return nil, fmt.Errorf("%w: no HAL backend registered", ErrBackendNotAvailable)
	}
	return OpenByName(name)
}

// OpenByName opens a device on the named backend.
func OpenByName(name string) (*Device, error) {
	variant, ok := Variant(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	b, ok := hal.GetBackend(variant)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotAvailable, name)
	}

	instance, err := b.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("backend: %s: create instance: %w", name, err)
	}

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("%w: %s: no adapters", ErrBackendNotAvailable, name)
	}
	selected := selectAdapter(adapters)

	open, err := selected.Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("backend: %s: open device: %w", name, err)
	}

	return &Device{
		Name:     name,
		Variant:  variant,
		Info:     selected.Info,
		Device:   open.Device,
		Queue:    open.Queue,
		instance: instance,
		adapter:  selected.Adapter,
	}, nil
}

// selectAdapter prefers a hardware GPU over software or virtual adapters.
func selectAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU {
			return &adapters[i]
		}
	}
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			return &adapters[i]
		}
	}
	return &adapters[0]
}

// FromProvider wraps a device owned by a host application. Providers that
// expose HalDevice() and HalQueue() are preferred; otherwise Device() and
// Queue() must already be HAL objects.
func FromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}

	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	var dev, queue any = provider.Device(), provider.Queue()
	if hp, ok := provider.(halProvider); ok {
		dev, queue = hp.HalDevice(), hp.HalQueue()
	}

	device, ok := dev.(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: device is %T", ErrNotHAL, dev)
	}
	q, ok := queue.(hal.Queue)
	if !ok || q == nil {
		return nil, fmt.Errorf("%w: queue is %T", ErrNotHAL, queue)
	}

	info := provider.AdapterInfo()
	return &Device{
		Name:          "external",
		Info:          gputypes.AdapterInfo{Name: info.Name},
		Device:        device,
		Queue:         q,
		SurfaceFormat: provider.SurfaceFormat(),
		external:      true,
	}, nil
}
