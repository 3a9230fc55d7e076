// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"slices"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Backend names accepted by OpenByName.
const (
	NameMetal  = "metal"
	NameDX12   = "dx12"
	NameVulkan = "vulkan"
	NameGL     = "gl"
	// NameEmpty selects the empty backend: noop or software, whichever
	// is linked.
	NameEmpty = "noop"
)

// Priority order for backend selection (first available wins).
// Native APIs first, GL as the portable fallback, empty last.
var backendPriority = []string{NameMetal, NameDX12, NameVulkan, NameGL, NameEmpty}

var variants = map[string]gputypes.Backend{
	NameMetal:  gputypes.BackendMetal,
	NameDX12:   gputypes.BackendDX12,
	NameVulkan: gputypes.BackendVulkan,
	NameGL:     gputypes.BackendGL,
	NameEmpty:  gputypes.BackendEmpty,
}

// registry snapshots the HAL backends registered right now. HAL backends
// register from init functions of packages this one does not import, so
// the snapshot is taken on every lookup rather than once.
func registry() *gpucontext.Registry[gputypes.Backend] {
	r := gpucontext.NewRegistry[gputypes.Backend](gpucontext.WithPriority(backendPriority...))
	for name, variant := range variants {
		if _, ok := hal.GetBackend(variant); ok {
			r.Register(name, func() gputypes.Backend { return variant })
		}
	}
	return r
}

// Available returns the names of the registered backends in priority order.
func Available() []string {
	r := registry()
	names := make([]string, 0, len(backendPriority))
	for _, name := range backendPriority {
		if r.Has(name) {
			names = append(names, name)
		}
	}
	return names
}

// IsRegistered reports whether the named backend is linked in.
func IsRegistered(name string) bool {
	return registry().Has(name)
}

// Best returns the name of the highest-priority registered backend, or ""
// when none is.
func Best() string {
	return registry().BestName()
}

// Variant maps a backend name to its HAL variant.
func Variant(name string) (gputypes.Backend, bool) {
	v, ok := variants[name]
	return v, ok
}

// Names returns every backend name OpenByName understands.
func Names() []string {
	return slices.Clone(backendPriority)
}
