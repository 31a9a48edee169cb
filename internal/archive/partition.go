package archive

import "slices"

// Partition is one month of archived identifiers.
type Partition struct {
	Month string
	ids   []string
	index map[string]struct{}
}

func newPartition(month string, sortedIDs []string) *Partition {
	index := make(map[string]struct{}, len(sortedIDs))
	for _, id := range sortedIDs {
		index[id] = struct{}{}
	}
	return &Partition{Month: month, ids: sortedIDs, index: index}
}

func (p *Partition) Contains(id string) bool {
	_, ok := p.index[id]
	return ok
}

func (p *Partition) Len() int {
	return len(p.ids)
}

// IDs returns a sorted copy of the partition's identifiers.
func (p *Partition) IDs() []string {
	return slices.Clone(p.ids)
}
