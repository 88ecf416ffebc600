package tournament

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildMetadata returns a fully-populated valid blob.
func buildMetadata() []byte {
	return NewMetadataWriter().
		AddU8(chunkRevision, 1).
		AddU32(chunkVersion, 2).
		AddString(chunkName, "Friday Cup").
		AddU8(chunkIconType, 3).
		AddString(chunkDescription, "150cc, no items").
		AddU32(chunkRepeatType, 1).
		AddU32(chunkGamesetNum, 4).
		AddString(chunkRedTeam, "Red").
		AddString(chunkBlueTeam, "Blue").
		AddU32(chunkBattleTime, 180).
		AddU32(chunkUpdateDate, 20240601).
		Bytes()
}

func TestParseMetadata(t *testing.T) {
	meta, err := ParseMetadata(buildMetadata())
	if err != nil {
		t.Fatalf("ParseMetadata: %v", err)
	}

	if meta.Revision != 1 {
		t.Errorf("Revision = %d, want 1", meta.Revision)
	}
	if meta.Version != 2 {
		t.Errorf("Version = %d, want 2", meta.Version)
	}
	if meta.Name != "Friday Cup" {
		t.Errorf("Name = %q, want %q", meta.Name, "Friday Cup")
	}
	if meta.IconType != 3 {
		t.Errorf("IconType = %d, want 3", meta.IconType)
	}
	if meta.Description != "150cc, no items" {
		t.Errorf("Description = %q", meta.Description)
	}
	if meta.RepeatType != 1 || meta.GamesetNum != 4 {
		t.Errorf("RepeatType/GamesetNum = %d/%d, want 1/4", meta.RepeatType, meta.GamesetNum)
	}
	if meta.RedTeam != "Red" || meta.BlueTeam != "Blue" {
		t.Errorf("teams = %q/%q", meta.RedTeam, meta.BlueTeam)
	}
	if meta.BattleTime != 180 {
		t.Errorf("BattleTime = %d, want 180", meta.BattleTime)
	}
	if meta.UpdateDate != 20240601 {
		t.Errorf("UpdateDate = %d, want 20240601", meta.UpdateDate)
	}
}

func TestParseChunksRoundTrip(t *testing.T) {
	payloads := map[uint8][]byte{
		0:  {0x7F},
		5:  {0, 0, 0, 9},
		12: {1, 2, 3, 4, 5},
	}

	w := NewMetadataWriter()
	for id := uint8(0); id <= 12; id++ {
		if p, ok := payloads[id]; ok {
			w.AddChunk(id, p)
		}
	}

	chunks, err := parseChunks(w.Bytes())
	if err != nil {
		t.Fatalf("parseChunks: %v", err)
	}
	if len(chunks) != len(payloads) {
		t.Fatalf("chunk count = %d, want %d", len(chunks), len(payloads))
	}
	for id, want := range payloads {
		if !bytes.Equal(chunks[id], want) {
			t.Errorf("chunk %d = %x, want %x", id, chunks[id], want)
		}
	}
}

func TestParseChunksRepeatedIDLaterWins(t *testing.T) {
	blob := NewMetadataWriter().
		AddChunk(3, []byte{1}).
		AddChunk(3, []byte{2}).
		Bytes()

	chunks, err := parseChunks(blob)
	if err != nil {
		t.Fatalf("parseChunks: %v", err)
	}
	if !bytes.Equal(chunks[3], []byte{2}) {
		t.Errorf("chunk 3 = %x, want later payload 02", chunks[3])
	}
}

func TestParseChunksErrors(t *testing.T) {
	valid := buildMetadata()

	wrongMagic := append([]byte(nil), valid...)
	binary.BigEndian.PutUint16(wrongMagic, 0x5A00)

	noTerminator := valid[:len(valid)-1]

	badID := NewMetadataWriter().AddChunk(13, []byte{1}).Bytes()

	truncated := NewMetadataWriter().AddChunk(2, []byte{0, 65}).Bytes()
	truncated = truncated[:len(truncated)-3] // cut into the payload

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"wrong magic", wrongMagic},
		{"missing terminator", noTerminator},
		{"chunk id above max", badID},
		{"truncated payload", truncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseChunks(tt.data); err == nil {
				t.Error("parseChunks accepted malformed input")
			}
		})
	}
}

func TestParseMetadataMissingChunk(t *testing.T) {
	// Everything but the name chunk.
	blob := NewMetadataWriter().
		AddU8(chunkRevision, 1).
		AddU32(chunkVersion, 2).
		AddU8(chunkIconType, 3).
		AddString(chunkDescription, "d").
		AddU32(chunkRepeatType, 1).
		AddU32(chunkGamesetNum, 4).
		AddString(chunkRedTeam, "r").
		AddString(chunkBlueTeam, "b").
		AddU32(chunkBattleTime, 1).
		AddU32(chunkUpdateDate, 1).
		Bytes()

	if _, err := ParseMetadata(blob); err == nil {
		t.Error("ParseMetadata accepted blob without name chunk")
	}
}

func TestParseMetadataEmptyChunkKeepsZero(t *testing.T) {
	blob := NewMetadataWriter().
		AddChunk(chunkRevision, nil).
		AddU32(chunkVersion, 2).
		AddString(chunkName, "n").
		AddU8(chunkIconType, 0).
		AddString(chunkDescription, "d").
		AddU32(chunkRepeatType, 0).
		AddU32(chunkGamesetNum, 0).
		AddString(chunkRedTeam, "").
		AddString(chunkBlueTeam, "").
		AddU32(chunkBattleTime, 0).
		AddU32(chunkUpdateDate, 0).
		Bytes()

	meta, err := ParseMetadata(blob)
	if err != nil {
		t.Fatalf("ParseMetadata: %v", err)
	}
	if meta.Revision != 0 {
		t.Errorf("Revision = %d, want 0", meta.Revision)
	}
}

func TestParseMetadataBadChunkSize(t *testing.T) {
	// Revision is a u8; two bytes is malformed.
	blob := NewMetadataWriter().
		AddChunk(chunkRevision, []byte{1, 2}).
		AddU32(chunkVersion, 2).
		AddString(chunkName, "n").
		AddU8(chunkIconType, 0).
		AddString(chunkDescription, "d").
		AddU32(chunkRepeatType, 0).
		AddU32(chunkGamesetNum, 0).
		AddString(chunkRedTeam, "").
		AddString(chunkBlueTeam, "").
		AddU32(chunkBattleTime, 0).
		AddU32(chunkUpdateDate, 0).
		Bytes()

	if _, err := ParseMetadata(blob); err == nil {
		t.Error("ParseMetadata accepted oversized u8 chunk")
	}
}
