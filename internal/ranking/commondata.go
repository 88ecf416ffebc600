package ranking

import (
	"encoding/binary"
	"math"
	"time"
	"unicode/utf16"

	"amkj-server/internal/models"
	"amkj-server/internal/nex"
)

// Per-player common data is a fixed 0xD4-byte blob, big-endian:
//
//	0x00..0x0C  three reserved u32
//	0x0C..0x14  vr_rate f32, br_rate f32
//	0x14..0x74  account data (96-byte mii store block)
//	0x74..0x84  u8 u8 pad[2] u32 u32 u32
//	0x84..0xC3  open-flag bitfield, LSB-first within each byte
//	0xC3..0xD4  trailer
const commonDataSize = 0xD4

const (
	offsetRates    = 0x0C
	offsetAccount  = 0x14
	offsetOpenFlag = 0x84
	openFlagSize   = 0xC3 - 0x84
)

// Mii nickname inside the account block: 10 UTF-16LE code units.
const (
	miiNameOffset = 0x1A
	miiNameUnits  = 10
)

// unlockField positions each unlock vector inside the bitfield by its
// starting byte; bits run LSB-first.
type unlockField struct {
	startByte int
	count     int
}

var unlockLayout = map[string]unlockField{
	"gp":     {0, 20},
	"engine": {4, 5},
	"driver": {5, 37},
	"body":   {13, 39},
	"tire":   {21, 21},
	"wing":   {29, 14},
	"stamp":  {45, 100},
	"dlc":    {61, 5},
}

func unlockBits(flags []byte, f unlockField) []uint8 {
	out := make([]uint8, f.count)
	for i := 0; i < f.count; i++ {
		bit := f.startByte*8 + i
		if flags[bit/8]&(1<<(bit%8)) != 0 {
			out[i] = 1
		}
	}
	return out
}

// miiName decodes the UTF-16LE nickname from the account block,
// stopping at the first NUL.
func miiName(account []byte) string {
	units := make([]uint16, 0, miiNameUnits)
	for i := 0; i < miiNameUnits; i++ {
		u := binary.LittleEndian.Uint16(account[miiNameOffset+2*i:])
		if u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

// ParseCommonData decodes the blob into the document written to the
// common-data collection. The raw bytes are kept alongside the decoded
// fields so clients get back exactly what they uploaded.
func ParseCommonData(pid uint32, data []byte, uniqueID uint64, now time.Time) (*models.CommonData, error) {
	if len(data) != commonDataSize {
		return nil, nex.Err("Ranking::InvalidDataSize")
	}

	flags := data[offsetOpenFlag : offsetOpenFlag+openFlagSize]
	doc := &models.CommonData{
		PID:        pid,
		Data:       append([]byte(nil), data...),
		Size:       len(data),
		UniqueID:   uniqueID,
		LastUpdate: now,

		VRRate: math.Float32frombits(binary.BigEndian.Uint32(data[offsetRates:])),
		BRRate: math.Float32frombits(binary.BigEndian.Uint32(data[offsetRates+4:])),

		GPUnlocks:     unlockBits(flags, unlockLayout["gp"]),
		EngineUnlocks: unlockBits(flags, unlockLayout["engine"]),
		DriverUnlocks: unlockBits(flags, unlockLayout["driver"]),
		BodyUnlocks:   unlockBits(flags, unlockLayout["body"]),
		TireUnlocks:   unlockBits(flags, unlockLayout["tire"]),
		WingUnlocks:   unlockBits(flags, unlockLayout["wing"]),
		StampUnlocks:  unlockBits(flags, unlockLayout["stamp"]),
		DLCUnlocks:    unlockBits(flags, unlockLayout["dlc"]),

		MiiName: miiName(data[offsetAccount : offsetAccount+96]),
	}
	return doc, nil
}
