// Package checkpoint implements compressed dump/load of placement state, so
// a long batch run can resume after an interruption instead of restarting
// global placement from scratch.
//
// A checkpoint is a snapshot of every PlacementUnit's location and flags. It
// round-trips through two encodings: JSON (zstd-compressed) for the CLI's
// on-disk checkpoint file, and bson for callers that stash the same record
// in a document store via the Cache interface.
package checkpoint

// PURecord snapshots one PlacementUnit. Tagged for both the zstd/JSON file
// format and a bson-backed Cache implementation, so one struct serves both
// without a parallel set of DTOs.
type PURecord struct {
	ID       string  `json:"id" bson:"id"`
	Kind     int     `json:"kind" bson:"kind"`
	CellID   string  `json:"cell_id,omitempty" bson:"cell_id,omitempty"`
	MacroID  string  `json:"macro_id,omitempty" bson:"macro_id,omitempty"`
	X        float64 `json:"x" bson:"x"`
	Y        float64 `json:"y" bson:"y"`
	IsFixed  bool    `json:"is_fixed" bson:"is_fixed"`
	IsLocked bool    `json:"is_locked" bson:"is_locked"`
	IsPacked bool    `json:"is_packed" bson:"is_packed"`
}

// Record is the full checkpoint: a run identifier, the schedule stage the
// run had reached, and every PU's snapshot.
type Record struct {
	RunID string     `json:"run_id" bson:"run_id"`
	Stage string     `json:"stage" bson:"stage"`
	PUs   []PURecord `json:"pus" bson:"pus"`
}
