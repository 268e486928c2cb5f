// Package diag encodes compact diagnostic snapshots for a running
// relay. Snapshots are logged at debug level alongside the
// human-readable counters line, snappy-compressed so the blob stays
// small; the ring forward path itself never runs through this codec,
// since it must stay byte-exact.
package diag

import (
	"encoding/json"

	"github.com/golang/snappy"
)

// Snapshot is one periodic counter readout for a game's relay.
type Snapshot struct {
	GameID     string `json:"game_id"`
	InstanceID string `json:"instance_id"`

	RX    uint64 `json:"rx"`
	TX    uint64 `json:"tx"`
	DupTX uint64 `json:"dup_tx"`

	Register uint64 `json:"register"`
	Drop     uint64 `json:"drop"`
	Unknown  uint64 `json:"unknown"`

	SeqInOrder   uint64 `json:"seq_in_order"`
	SeqAhead     uint64 `json:"seq_ahead"`
	SeqBehind    uint64 `json:"seq_behind"`
	SeqDuplicate uint64 `json:"seq_duplicate"`
	SeqShort     uint64 `json:"seq_short"`

	GapTotal uint64 `json:"gap_total"`
	GapMax   uint16 `json:"gap_max"`
}

// Encode marshals s to JSON and snappy-compresses the result.
func Encode(s Snapshot) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

// Decode reverses Encode, for tooling that inspects captured
// diagnostics snapshots.
func Decode(compressed []byte) (Snapshot, error) {
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return Snapshot{}, err
	}
	var s Snapshot
	err = json.Unmarshal(raw, &s)
	return s, err
}
