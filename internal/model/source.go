package model

// VideoSource is the normalized handle for one input video, whatever its
// origin. It is created once by the source provider and owned exclusively by
// the pipeline run that consumes it.
type VideoSource struct {
	ID            string       `json:"id"`
	Origin        SourceOrigin `json:"origin"`
	// StorageURL points at the staged bytes for uploads and live captures.
	StorageURL string `json:"storageUrl,omitempty"`
	// RemoteID is the canonical supported-host video identifier for
	// remote_url sources.
	RemoteID string `json:"remoteId,omitempty"`
	// Payload carries the raw bytes only when no object storage is
	// configured (development fallback).
	Payload       []byte  `json:"payload,omitempty"`
	DeclaredTitle string  `json:"declaredTitle,omitempty"`
	DurationHint  float64 `json:"durationHint,omitempty"`
	ByteSize      int64   `json:"byteSize,omitempty"`
}
