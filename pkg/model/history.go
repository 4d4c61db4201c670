package model

// HistoryType classifies what an apply did to a file that existed (or not) before any mod.
type HistoryType int

// History classifications.
const (
	// HistoryAdded marks a file that did not exist before any mod and must be deleted on revert.
	HistoryAdded HistoryType = iota + 1
	// HistoryReplaced marks a file that existed and was overwritten; its original bytes are saved.
	HistoryReplaced
	// HistoryRemoved marks a file that existed and was deleted; its original bytes are saved.
	HistoryRemoved
)

func (t HistoryType) String() string {
	switch t {
	case HistoryAdded:
		return "added"
	case HistoryReplaced:
		return "replaced"
	case HistoryRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// FileHistory is the persisted record of the previous apply's effect.
type FileHistory struct {
	AddedFiles    []PatchFilePath `json:"added_files"`
	ReplacedFiles []PatchFilePath `json:"replaced_files"`
	RemovedFiles  []PatchFilePath `json:"removed_files"`
}

// IsEmpty reports whether the history records no change.
func (h *FileHistory) IsEmpty() bool {
	return h == nil || len(h.AddedFiles)+len(h.ReplacedFiles)+len(h.RemovedFiles) == 0
}

// Len returns the number of recorded files.
func (h *FileHistory) Len() int {
	if h == nil {
		return 0
	}
	return len(h.AddedFiles) + len(h.ReplacedFiles) + len(h.RemovedFiles)
}
