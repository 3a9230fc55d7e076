// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package backend opens the GPU device a renderer draws with.
//
// Backends are the HAL implementations of gogpu/wgpu. They register
// themselves on import, so a program links the ones it wants:
//
//	import (
//		_ "github.com/gogpu/wgpu/hal/vulkan"
//		_ "github.com/gogpu/wgpu/hal/noop"
//	)
//
// # Backend Selection
//
// Open picks the best registered backend by priority (Metal, DX12,
// Vulkan, GL, then the empty backend used for headless runs and tests).
// OpenByName requests a specific one:
//
//	dev, err := backend.OpenByName("vulkan")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer dev.Close()
//
// # Shared Devices
//
// A host application that already owns a device passes it in through a
// gpucontext.DeviceProvider. FromProvider wraps it without taking
// ownership; Close leaves it alive.
package backend
