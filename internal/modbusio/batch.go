package modbusio

import (
	"sort"

	"github.com/mhartig/idmbridge/internal/registers"
)

// Standard Modbus caps a read at 125 registers; stay one float below it so
// a trailing two-register descriptor always fits.
const maxGroupSpan = 124

type group struct {
	start uint16
	count uint16
	descs []registers.Descriptor
}

// planGroups coalesces address-adjacent descriptors into read groups.
// A new group starts when the gap to the next descriptor exceeds gap
// registers or the group would grow past maxGroupSpan.
func planGroups(descs []registers.Descriptor, gap uint16) []group {
	if len(descs) == 0 {
		return nil
	}
	sorted := make([]registers.Descriptor, len(descs))
	copy(sorted, descs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Address < sorted[j].Address })

	var groups []group
	cur := group{start: sorted[0].Address}
	end := sorted[0].Address // exclusive end of the current group

	for _, d := range sorted {
		dEnd := d.Address + d.Width()
		if len(cur.descs) > 0 && (d.Address-end > gap || dEnd-cur.start > maxGroupSpan) {
			cur.count = end - cur.start
			groups = append(groups, cur)
			cur = group{start: d.Address}
		}
		cur.descs = append(cur.descs, d)
		end = dEnd
	}
	cur.count = end - cur.start
	return append(groups, cur)
}
