package tournament

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"amkj-server/internal/models"
)

// Tournament metadata arrives as a chunked binary blob, big-endian:
//
//	u16 magic = 0x5A5A
//	repeat: u8 chunk_id        (0xFF terminates)
//	        u16 size
//	        size bytes payload
//
// Chunk ids above 12 are invalid. A repeated id keeps the later payload.
const (
	metadataMagic   = 0x5A5A
	metadataMaxID   = 12
	metadataEndMark = 0xFF
)

// parseChunks splits the framing into payloads keyed by chunk id.
func parseChunks(data []byte) (map[uint8][]byte, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("metadata: truncated header")
	}
	if binary.BigEndian.Uint16(data) != metadataMagic {
		return nil, fmt.Errorf("metadata: wrong magic %#04x", binary.BigEndian.Uint16(data))
	}

	chunks := make(map[uint8][]byte)
	pos := 2
	for {
		if pos >= len(data) {
			return nil, fmt.Errorf("metadata: missing terminator")
		}
		id := data[pos]
		pos++
		if id == metadataEndMark {
			return chunks, nil
		}
		if id > metadataMaxID {
			return nil, fmt.Errorf("metadata: invalid chunk id %d", id)
		}
		if pos+2 > len(data) {
			return nil, fmt.Errorf("metadata: truncated size for chunk %d", id)
		}
		size := int(binary.BigEndian.Uint16(data[pos:]))
		pos += 2
		if pos+size > len(data) {
			return nil, fmt.Errorf("metadata: truncated payload for chunk %d", id)
		}
		chunks[id] = data[pos : pos+size]
		pos += size
	}
}

const (
	chunkRevision    = 0
	chunkVersion     = 1
	chunkName        = 2
	chunkIconType    = 3
	chunkDescription = 4
	chunkRepeatType  = 5
	chunkGamesetNum  = 6
	chunkRedTeam     = 7
	chunkBlueTeam    = 8
	chunkBattleTime  = 9
	chunkUpdateDate  = 11
)

// ParseMetadata decodes the chunked blob into its structured form. Every
// field's chunk must be present; an empty payload leaves the field zero.
func ParseMetadata(data []byte) (*models.ParsedMetadata, error) {
	chunks, err := parseChunks(data)
	if err != nil {
		return nil, err
	}

	meta := &models.ParsedMetadata{}
	if meta.Revision, err = chunkU8(chunks, chunkRevision); err != nil {
		return nil, err
	}
	if meta.Version, err = chunkU32(chunks, chunkVersion); err != nil {
		return nil, err
	}
	if meta.Name, err = chunkUTF16(chunks, chunkName); err != nil {
		return nil, err
	}
	if meta.IconType, err = chunkU8(chunks, chunkIconType); err != nil {
		return nil, err
	}
	if meta.Description, err = chunkUTF16(chunks, chunkDescription); err != nil {
		return nil, err
	}
	if meta.RepeatType, err = chunkU32(chunks, chunkRepeatType); err != nil {
		return nil, err
	}
	if meta.GamesetNum, err = chunkU32(chunks, chunkGamesetNum); err != nil {
		return nil, err
	}
	if meta.RedTeam, err = chunkUTF16(chunks, chunkRedTeam); err != nil {
		return nil, err
	}
	if meta.BlueTeam, err = chunkUTF16(chunks, chunkBlueTeam); err != nil {
		return nil, err
	}
	if meta.BattleTime, err = chunkU32(chunks, chunkBattleTime); err != nil {
		return nil, err
	}
	if meta.UpdateDate, err = chunkU32(chunks, chunkUpdateDate); err != nil {
		return nil, err
	}
	return meta, nil
}

func chunkPayload(chunks map[uint8][]byte, id uint8) ([]byte, error) {
	payload, ok := chunks[id]
	if !ok {
		return nil, fmt.Errorf("metadata: missing chunk %d", id)
	}
	return payload, nil
}

func chunkU8(chunks map[uint8][]byte, id uint8) (uint8, error) {
	payload, err := chunkPayload(chunks, id)
	if err != nil {
		return 0, err
	}
	if len(payload) == 0 {
		return 0, nil
	}
	if len(payload) != 1 {
		return 0, fmt.Errorf("metadata: chunk %d has size %d, want 1", id, len(payload))
	}
	return payload[0], nil
}

func chunkU32(chunks map[uint8][]byte, id uint8) (uint32, error) {
	payload, err := chunkPayload(chunks, id)
	if err != nil {
		return 0, err
	}
	if len(payload) == 0 {
		return 0, nil
	}
	if len(payload) != 4 {
		return 0, fmt.Errorf("metadata: chunk %d has size %d, want 4", id, len(payload))
	}
	return binary.BigEndian.Uint32(payload), nil
}

// chunkUTF16 decodes a UTF-16BE payload and strips the trailing NUL.
func chunkUTF16(chunks map[uint8][]byte, id uint8) (string, error) {
	payload, err := chunkPayload(chunks, id)
	if err != nil {
		return "", err
	}
	if len(payload) == 0 {
		return "", nil
	}
	if len(payload)%2 != 0 {
		return "", fmt.Errorf("metadata: chunk %d has odd UTF-16 size %d", id, len(payload))
	}

	units := make([]uint16, len(payload)/2)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(payload[2*i:])
	}
	runes := utf16.Decode(units)
	if n := len(runes); n > 0 && runes[n-1] == 0 {
		runes = runes[:n-1]
	}
	return string(runes), nil
}

// MetadataWriter builds a blob with the same framing the parser accepts.
// The admin tooling and the tests use it; the game always sends raw
// bytes.
type MetadataWriter struct {
	buf []byte
}

func NewMetadataWriter() *MetadataWriter {
	w := &MetadataWriter{}
	w.buf = binary.BigEndian.AppendUint16(w.buf, metadataMagic)
	return w
}

func (w *MetadataWriter) AddChunk(id uint8, payload []byte) *MetadataWriter {
	w.buf = append(w.buf, id)
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(len(payload)))
	w.buf = append(w.buf, payload...)
	return w
}

func (w *MetadataWriter) AddU8(id uint8, v uint8) *MetadataWriter {
	return w.AddChunk(id, []byte{v})
}

func (w *MetadataWriter) AddU32(id uint8, v uint32) *MetadataWriter {
	return w.AddChunk(id, binary.BigEndian.AppendUint32(nil, v))
}

// AddString appends a UTF-16BE string chunk with the trailing NUL the
// game includes.
func (w *MetadataWriter) AddString(id uint8, s string) *MetadataWriter {
	units := utf16.Encode([]rune(s))
	payload := make([]byte, 0, 2*len(units)+2)
	for _, u := range units {
		payload = binary.BigEndian.AppendUint16(payload, u)
	}
	payload = binary.BigEndian.AppendUint16(payload, 0)
	return w.AddChunk(id, payload)
}

func (w *MetadataWriter) Bytes() []byte {
	return append(append([]byte(nil), w.buf...), metadataEndMark)
}
