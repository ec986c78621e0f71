package persistence

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/kestrel-sim/worldkernel/internal/action"
	"github.com/kestrel-sim/worldkernel/internal/chunkmodel"
	"github.com/kestrel-sim/worldkernel/internal/geo"
)

// registerGobTypes tells encoding/gob about every concrete type that
// travels inside an interface{}-free but struct-heavy snapshot. gob
// itself only needs this for interface values; Snapshot and Event never
// hold one, but chunkmodel.Chunk's map key (geo.ChunkCoord) and the
// Reject/Event sum-type fields are plain structs gob handles natively.
// Kept for documentation and to make the zero-value encode path explicit
// rather than relying on gob's lazy first-Encode registration.
func init() {
	gob.Register(geo.ChunkCoord{})
	gob.Register(chunkmodel.Chunk{})
}

// encode serializes v with gob and then compresses it with zstd (spec
// 4.H: "the wire representation is left to implementation choice"). zstd
// is the corpus's modern equivalent of the teacher's SyncConfig.UseGzipCompr
// intent, already used elsewhere in the pack for wire compression.
func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("persistence: gob encode: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("persistence: new zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(buf.Bytes(), nil), nil
}

// decode reverses encode into v, which must be a pointer.
func decode(data []byte, v interface{}) error {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return fmt.Errorf("persistence: new zstd decoder: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return fmt.Errorf("persistence: zstd decode: %w", err)
	}

	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(v); err != nil {
		return fmt.Errorf("persistence: gob decode: %w", err)
	}
	return nil
}

// encodeEvent/decodeEvent are the journal's narrower per-record codec;
// kept distinct from the snapshot codec so a schema change to one never
// forces a re-encode of the other.
func encodeEvent(ev action.Event) ([]byte, error) {
	return encode(ev)
}

func decodeEvent(data []byte) (action.Event, error) {
	var ev action.Event
	err := decode(data, &ev)
	return ev, err
}
