package gpucore

import "errors"

// Error taxonomy of the rendering core.
var (
	// ErrPipelineCreation is returned when the backend rejects a pipeline
	// descriptor or the vertex format cannot feed the selected program.
	// It is fatal for the offending context only.
	ErrPipelineCreation = errors.New("rtsgfx: pipeline creation failed")

	// ErrSceneState is returned when the scene lifecycle is driven out of
	// order, for example EndScene without BeginScene.
	ErrSceneState = errors.New("rtsgfx: invalid scene state")

	// ErrResourceExhausted is returned when a buffer or texture allocation
	// fails. The frame being built is abandoned.
	ErrResourceExhausted = errors.New("rtsgfx: resource exhausted")

	// ErrDeviceLost is returned when the backend reports context loss.
	ErrDeviceLost = errors.New("rtsgfx: device lost")
)
