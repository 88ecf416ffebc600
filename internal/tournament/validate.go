package tournament

import (
	"amkj-server/internal/nex"
)

// AttributeCount is the fixed width of the simple-search-object
// attribute array. Slot roles (public flag, team flag, visibility) are
// what the query and ranking paths key on.
const AttributeCount = 20

const (
	// AttrPublic is 1 for tournaments listed in competition info.
	AttrPublic = 0
	// AttrTeams is 2 for team tournaments.
	AttrTeams = 4
)

type attrRange struct {
	min, max uint32
}

// Allowed value ranges per attribute slot. Slots absent from the table
// are unconstrained.
var attributeRules = map[int]attrRange{
	0:  {1, 2},
	2:  {0, 5},
	3:  {1, 8},
	4:  {1, 2},
	5:  {1, 3},
	6:  {1, 2},
	7:  {1, 2},
	8:  {1, 9},
	9:  {0, 4},
	10: {1, 2},
	11: {1, 4},
	12: {1, 2},
	13: {1, 2},
}

// ValidateAttributes checks the fixed-width attribute array against the
// per-slot value table.
func ValidateAttributes(attributes []uint32) error {
	if len(attributes) != AttributeCount {
		return nex.Err("Core::InvalidArgument")
	}
	for slot, rule := range attributeRules {
		if attributes[slot] < rule.min || attributes[slot] > rule.max {
			return nex.Err("Core::InvalidArgument")
		}
	}
	return nil
}

// CommunityCodeLength is the fixed length of the human-entered join
// code.
const CommunityCodeLength = 12

// ValidateCommunityCode checks the 12-decimal-digit format; uniqueness
// is checked against the store separately.
func ValidateCommunityCode(code string) error {
	if len(code) != CommunityCodeLength {
		return nex.Err("Core::InvalidArgument")
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return nex.Err("Core::InvalidArgument")
		}
	}
	return nil
}
