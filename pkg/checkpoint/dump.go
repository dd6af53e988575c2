package checkpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/fabricplace/amfplacer/pkg/observability"
	"github.com/fabricplace/amfplacer/pkg/placement"
)

// NewRunID returns a fresh run identifier, stable across dump/load cycles
// for one placement run.
func NewRunID() string {
	return uuid.NewString()
}

// PrepareForDump clears transient solver state that a reload should not
// resurrect: every PU's isPacked flag, and the fixed flag of every PU that
// is not locked, whether it was fixed explicitly or not. A still-locked PU
// stays fixed.
func PrepareForDump(pi *placement.Info) {
	for _, pu := range pi.PUs {
		pu.IsPacked = false
		if pu.IsFixed && !pu.IsLocked {
			pu.IsFixed = false
		}
	}
}

// Snapshot builds a Record from pi's current PU state, without mutating pi.
// Callers that want the clearSomeAttributesCannotRecord semantics call
// PrepareForDump first.
func Snapshot(runID, stage string, pi *placement.Info) Record {
	ids := make([]string, 0, len(pi.PUs))
	for id := range pi.PUs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	recs := make([]PURecord, 0, len(ids))
	for _, id := range ids {
		pu := pi.PUs[id]
		recs = append(recs, PURecord{
			ID: pu.ID, Kind: int(pu.Kind), CellID: pu.CellID, MacroID: pu.MacroID,
			X: pu.X, Y: pu.Y, IsFixed: pu.IsFixed, IsLocked: pu.IsLocked, IsPacked: pu.IsPacked,
		})
	}
	return Record{RunID: runID, Stage: stage, PUs: recs}
}

// Dump JSON-encodes rec and writes it zstd-compressed to w.
func Dump(ctx context.Context, w io.Writer, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("open zstd writer: %w", err)
	}
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return enc.Close()
}

// Load reads a zstd-compressed JSON Record from r.
func Load(ctx context.Context, r io.Reader) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	dec, err := zstd.NewReader(r)
	if err != nil {
		return Record{}, fmt.Errorf("open zstd reader: %w", err)
	}
	defer dec.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, dec); err != nil {
		return Record{}, fmt.Errorf("decompress checkpoint: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		return Record{}, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return rec, nil
}

// Restore applies rec onto pi: every PU id present in both rec and pi has
// its location and flags overwritten. PU ids present only in rec (a stale
// checkpoint against a changed design) are skipped and returned to the
// caller rather than failing the whole resume.
func Restore(pi *placement.Info, rec Record) []string {
	var missing []string
	for _, r := range rec.PUs {
		pu, ok := pi.PUs[r.ID]
		if !ok {
			missing = append(missing, r.ID)
			continue
		}
		pu.X, pu.Y = r.X, r.Y
		pu.IsFixed, pu.IsLocked, pu.IsPacked = r.IsFixed, r.IsLocked, r.IsPacked
	}
	return missing
}

// DumpToCache marshals rec to bson and stores it in c under key, firing the
// registered cache hooks. Any Cache implementation works (file, redis, or
// none).
func DumpToCache(ctx context.Context, c Cache, key string, rec Record) error {
	raw, err := bsonMarshal(rec)
	if err != nil {
		return fmt.Errorf("bson-marshal checkpoint: %w", err)
	}
	if err := c.Set(ctx, key, raw, 0); err != nil {
		return err
	}
	observability.Cache().OnCacheSet(ctx, "checkpoint", len(raw))
	return nil
}

// LoadFromCache is the DumpToCache inverse. ok is false on a cache miss.
func LoadFromCache(ctx context.Context, c Cache, key string) (rec Record, ok bool, err error) {
	raw, found, err := c.Get(ctx, key)
	if err != nil || !found {
		if err == nil {
			observability.Cache().OnCacheMiss(ctx, "checkpoint")
		}
		return Record{}, false, err
	}
	observability.Cache().OnCacheHit(ctx, "checkpoint")
	if err := bsonUnmarshal(raw, &rec); err != nil {
		return Record{}, false, fmt.Errorf("bson-unmarshal checkpoint: %w", err)
	}
	return rec, true, nil
}
