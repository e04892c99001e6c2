package runstats

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Group holds the accumulators of every run sharing one group-by value.
type Group struct {
	Name  string
	Count int
	Stats map[string]*FieldStats
}

func (g *Group) add(fields []string, values []float64) {
	g.Count++
	for i, field := range fields {
		s, ok := g.Stats[field]
		if !ok {
			s = &FieldStats{}
			g.Stats[field] = s
		}
		s.NewMeasurement(values[i])
	}
}

type GroupTable struct {
	buckets      []*groupEntry
	nbuckets     uint64
	knownEntries []string
}

func NewGroupTable(nbuckets uint64) (*GroupTable, error) {
	// http://www.graphics.stanford.edu/~seander/bithacks.html#DetermineIfPowerOf2
	if nbuckets == 0 || (nbuckets&(nbuckets-1)) != 0 {
		return nil, fmt.Errorf("nbuckets must be a power of 2: %d", nbuckets)
	}
	return &GroupTable{
		buckets:      make([]*groupEntry, nbuckets),
		nbuckets:     nbuckets,
		knownEntries: make([]string, 0, 16),
	}, nil
}

type groupEntry struct {
	name  string
	group *Group
	next  *groupEntry
}

func (t *GroupTable) GetOrCreate(name string) *Group {
	h := xxhash.Sum64String(name) & (t.nbuckets - 1)

	for e := t.buckets[h]; e != nil; e = e.next {
		if e.name == name {
			return e.group
		}
	}

	name = strings.Clone(name)
	newEntry := &groupEntry{
		name:  name,
		group: &Group{Name: name, Stats: make(map[string]*FieldStats)},
	}

	newEntry.next = t.buckets[h]
	t.buckets[h] = newEntry
	t.knownEntries = append(t.knownEntries, name)
	return newEntry.group
}

// KnownEntries returns group names in first-seen order.
func (t *GroupTable) KnownEntries() []string {
	return t.knownEntries
}

func (t *GroupTable) Groups() []*Group {
	groups := make([]*Group, 0, len(t.knownEntries))
	for _, name := range t.knownEntries {
		groups = append(groups, t.GetOrCreate(name))
	}
	return groups
}
