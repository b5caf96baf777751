// Package spatial is the broad-phase proximity index used by the arena.
//
// The grid is a pair of fixed-capacity bucket tables. The cell table maps a
// packed (cx, cy) cell key to the ids occupying that cell; the reverse table
// maps an id to the cell keys it occupies so deletion never scans the grid.
// Both tables are sized once from an expected entity count and never rehash.
// Buckets are slices whose capacity is reused, so once warmed up inserts,
// deletes and queries do not allocate.
package spatial

import (
	"math"
	"math/bits"
)

// ID is the entity identifier stored in the grid.
type ID = uint32

type occupant struct {
	key   uint64
	id    ID
	ideal bool
}

type cellRef struct {
	id  ID
	key uint64
}

// Grid answers "which ids are near this point" queries.
type Grid struct {
	shift    uint
	rowBits  uint
	cellMask uint64
	refMask  uint64

	cells [][]occupant
	refs  [][]cellRef
	ideal map[ID]bool
	count int
}

// New sizes both tables for roughly expectedEntities occupants. cellShift
// is log2 of the cell edge length in world units.
func New(expectedEntities int, cellShift uint) *Grid {
	if expectedEntities < 16 {
		expectedEntities = 16
	}
	// large entities span several cells; give the cell table headroom
	cellSlots := nextPow2(uint64(expectedEntities) * 4)
	refSlots := nextPow2(uint64(expectedEntities))
	return &Grid{
		shift:    cellShift,
		rowBits:  uint(bits.TrailingZeros64(cellSlots)+1) / 2,
		cellMask: cellSlots - 1,
		refMask:  refSlots - 1,
		cells:    make([][]occupant, cellSlots),
		refs:     make([][]cellRef, refSlots),
		ideal:    make(map[ID]bool, expectedEntities),
	}
}

func nextPow2(v uint64) uint64 {
	if v <= 1 {
		return 1
	}
	return 1 << bits.Len64(v-1)
}

// PackKey packs a cell coordinate into one 64-bit key.
func PackKey(cx, cy int32) uint64 {
	return uint64(uint32(cx)) | uint64(uint32(cy))<<32
}

// UnpackKey is the inverse of PackKey.
func UnpackKey(key uint64) (cx, cy int32) {
	return int32(uint32(key)), int32(uint32(key >> 32))
}

// bucket places a key without scrambling it: in-range coordinates land on
// their row-major cell index, so neighbouring cells share cache lines.
func (g *Grid) bucket(key uint64) uint64 {
	cx, cy := uint64(uint32(key)), uint64(uint32(key>>32))
	return (cx | cy<<g.rowBits) & g.cellMask
}

func (g *Grid) cell(v float64) int32 {
	return int32(math.Floor(v)) >> g.shift
}

// span returns the inclusive cell range covering the square that starts at
// (x, y) and extends 2*radius along both axes.
func (g *Grid) span(x, y, radius float64) (minX, minY, maxX, maxY int32) {
	d := 2 * radius
	return g.cell(x), g.cell(y), g.cell(x + d), g.cell(y + d)
}

// Insert adds id to every cell overlapped by the square from (x, y) to
// (x+2r, y+2r).
func (g *Grid) Insert(id ID, x, y, radius float64) {
	if _, ok := g.ideal[id]; ok {
		g.Delete(id)
	}
	minX, minY, maxX, maxY := g.span(x, y, radius)
	ideal := minX == maxX && minY == maxY
	g.ideal[id] = ideal

	rb := uint64(id) & g.refMask
	for cy := minY; cy <= maxY; cy++ {
		for cx := minX; cx <= maxX; cx++ {
			key := PackKey(cx, cy)
			b := g.bucket(key)
			g.cells[b] = append(g.cells[b], occupant{key: key, id: id, ideal: ideal})
			g.refs[rb] = append(g.refs[rb], cellRef{id: id, key: key})
		}
	}
	g.count++
}

// Delete removes id from every cell it occupies. Deleting an absent id is a no-op.
func (g *Grid) Delete(id ID) {
	if _, ok := g.ideal[id]; !ok {
		return
	}
	rb := uint64(id) & g.refMask
	refs := g.refs[rb]
	kept := refs[:0]
	for _, ref := range refs {
		if ref.id != id {
			kept = append(kept, ref)
			continue
		}
		g.removeOccupant(ref.key, id)
	}
	clearTail(refs, len(kept))
	g.refs[rb] = kept
	delete(g.ideal, id)
	g.count--
}

func (g *Grid) removeOccupant(key uint64, id ID) {
	b := g.bucket(key)
	occ := g.cells[b]
	for i := range occ {
		if occ[i].id == id && occ[i].key == key {
			last := len(occ) - 1
			occ[i] = occ[last]
			occ[last] = occupant{}
			g.cells[b] = occ[:last]
			return
		}
	}
}

func clearTail[T any](s []T, from int) {
	var zero T
	for i := from; i < len(s); i++ {
		s[i] = zero
	}
}

// Reinsert moves id to a new position; called once per entity per tick.
func (g *Grid) Reinsert(id ID, x, y, radius float64) {
	g.Delete(id)
	g.Insert(id, x, y, radius)
}

// QueryRadius appends to buf the ids sharing a cell with the square
// (x, y)..(x+2r, y+2r), excluding self.
func (g *Grid) QueryRadius(self ID, x, y, radius float64, buf []ID) []ID {
	minX, minY, maxX, maxY := g.span(x, y, radius)
	return g.collect(self, minX, minY, maxX, maxY, buf)
}

// QueryRect appends to buf the ids sharing a cell with the rectangle
// (minX, minY)..(maxX, maxY), excluding self.
func (g *Grid) QueryRect(self ID, minX, minY, maxX, maxY float64, buf []ID) []ID {
	return g.collect(self, g.cell(minX), g.cell(minY), g.cell(maxX), g.cell(maxY), buf)
}

func (g *Grid) collect(self ID, minX, minY, maxX, maxY int32, buf []ID) []ID {
	start := len(buf)
	for cy := minY; cy <= maxY; cy++ {
		for cx := minX; cx <= maxX; cx++ {
			key := PackKey(cx, cy)
			for _, o := range g.cells[g.bucket(key)] {
				if o.key != key || o.id == self {
					continue
				}
				// an ideal occupant lives in exactly one cell and cannot repeat
				if o.ideal || !containsID(buf[start:], o.id) {
					buf = append(buf, o.id)
				}
			}
		}
	}
	return buf
}

func containsID(ids []ID, id ID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Contains reports whether id is currently indexed
func (g *Grid) Contains(id ID) bool {
	_, ok := g.ideal[id]
	return ok
}

// Ideal reports whether id occupies exactly one cell
func (g *Grid) Ideal(id ID) bool {
	return g.ideal[id]
}

// Len returns the number of indexed ids
func (g *Grid) Len() int {
	return g.count
}

// CellSize returns the cell edge length in world units
func (g *Grid) CellSize() float64 {
	return float64(int64(1) << g.shift)
}

// Clear empties both tables without releasing their storage.
func (g *Grid) Clear() {
	for i := range g.cells {
		clearTail(g.cells[i], 0)
		g.cells[i] = g.cells[i][:0]
	}
	for i := range g.refs {
		clearTail(g.refs[i], 0)
		g.refs[i] = g.refs[i][:0]
	}
	clear(g.ideal)
	g.count = 0
}
