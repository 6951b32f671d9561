package deploy

import "time"

// SketchMetadata is the opaque output of the external compile step. The
// orchestrator only routes it to jobs and memoizes it per sketch and board.
type SketchMetadata struct {
	SketchPath string    `json:"sketchPath"`
	FQBN       string    `json:"fqbn"`
	HexPath    string    `json:"hexPath"`
	Checksum   string    `json:"checksum"`
	SizeBytes  int64     `json:"sizeBytes"`
	CompiledAt time.Time `json:"compiledAt"`
}

// buildKey is the compile-cache key for a sketch compiled for a board.
func buildKey(sketchPath, fqbn string) string {
	return "build:" + sketchPath + "|" + fqbn
}
