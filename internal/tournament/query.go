package tournament

import (
	"amkj-server/internal/nex"
)

// Condition is one attribute-slot filter from a search param; the slot
// is the condition's position in the request list.
type Condition struct {
	Operator uint32
	Value    uint32
}

// Comparison operators as they appear on the wire.
const (
	OpIgnore uint32 = iota
	OpEqual
	OpGreaterThan
	OpLessThan
	OpGreaterOrEqual
	OpLessOrEqual
)

// AttributeFilter is a compiled per-slot comparison.
type AttributeFilter struct {
	Slot     int
	Operator uint32
	Value    uint32
}

// Matches applies the filter to an attribute array.
func (f AttributeFilter) Matches(attributes []uint32) bool {
	if f.Slot >= len(attributes) {
		return false
	}
	v := attributes[f.Slot]
	switch f.Operator {
	case OpEqual:
		return v == f.Value
	case OpGreaterThan:
		return v > f.Value
	case OpLessThan:
		return v < f.Value
	case OpGreaterOrEqual:
		return v >= f.Value
	case OpLessOrEqual:
		return v <= f.Value
	}
	return false
}

// CompileConditions turns the positional condition list into attribute
// filters. Operator 0 drops the condition; anything past OpLessOrEqual
// is a client bug.
func CompileConditions(conditions []Condition) ([]AttributeFilter, error) {
	var filters []AttributeFilter
	for slot, cond := range conditions {
		switch cond.Operator {
		case OpIgnore:
		case OpEqual, OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual:
			filters = append(filters, AttributeFilter{
				Slot:     slot,
				Operator: cond.Operator,
				Value:    cond.Value,
			})
		default:
			return nil, nex.Err("Core::InvalidArgument")
		}
	}
	return filters, nil
}

// SearchQuery is the compiled search: exact top-level filters (zero
// values mean "any") plus per-slot conditions, all conjoined.
type SearchQuery struct {
	ID            uint32
	Owner         uint32
	CommunityCode string
	Filters       []AttributeFilter
	Offset        uint32
	Size          uint32
}
