package core

import (
	"magnetd/internal/engine"
)

// Snapshot is the backend-independent status record pushed to API callers and
// WebSocket subscribers. RemainingTime is nil (not zero) when the download
// rate is zero, since zero would read as completion-imminent.
type Snapshot struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	Status        engine.State `json:"status"`
	Progress      float64      `json:"progress"`
	DownloadSpeed int64        `json:"download_speed"`
	UploadSpeed   int64        `json:"upload_speed"`
	NumPeers      int          `json:"num_peers"`
	TotalSize     int64        `json:"total_size"`
	Downloaded    int64        `json:"downloaded"`
	RemainingTime *int64       `json:"remaining_time"`
	SavePath      string       `json:"save_path"`
}

// MetadataSnapshot is the synthetic snapshot for a download whose metadata the
// engine has not fetched yet. The save path is the entry's configured one, not
// the engine's, since the engine has none at this point.
func MetadataSnapshot(id, savePath string) Snapshot {
	return Snapshot{
		ID:       id,
		Name:     "Fetching Metadata...",
		Status:   engine.StateMetadata,
		SavePath: savePath,
	}
}

// Normalize converts an engine status into a Snapshot for the given entry.
func Normalize(id, savePath string, st *engine.Status) Snapshot {
	if !st.HasMetadata {
		return MetadataSnapshot(id, savePath)
	}

	progress := st.Progress * 100
	if progress < 0 {
		progress = 0
	} else if progress > 100 {
		progress = 100
	}

	var remaining *int64
	if st.DownloadRate > 0 {
		secs := (st.TotalSize - st.Downloaded) / st.DownloadRate
		if secs < 0 {
			secs = 0
		}
		remaining = &secs
	}

	state := st.State
	if state == "" {
		state = engine.StateUnknown
	}

	return Snapshot{
		ID:            id,
		Name:          st.Name,
		Status:        state,
		Progress:      progress,
		DownloadSpeed: st.DownloadRate,
		UploadSpeed:   st.UploadRate,
		NumPeers:      st.Peers,
		TotalSize:     st.TotalSize,
		Downloaded:    st.Downloaded,
		RemainingTime: remaining,
		SavePath:      st.SavePath,
	}
}
