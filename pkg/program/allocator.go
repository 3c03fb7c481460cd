package program

// classBoundaries are the bucket-allocator size classes of spec §4.5
// Step 1: {1,2,4,8,16,32,≥}. Entries are grouped into the smallest
// class that fits their width so that signals of similar width land
// next to each other in the packed state vector, improving locality
// without padding any individual entry past its declared width.
var classBoundaries = []int{1, 2, 4, 8, 16, 32}

func classOf(width int) int {
	for i, b := range classBoundaries {
		if width <= b {
			return i
		}
	}
	return len(classBoundaries) // catch-all "≥" class
}

// allocEntry is one pending allocation request.
type allocEntry struct {
	width  int
	offset int // filled in by finalize
}

// bucketAllocator assigns bit offsets for every distinct output that
// needs its own storage (every non-Signal output; Signal nodes
// coalesce onto their driver's offset instead of calling Alloc).
type bucketAllocator struct {
	classes [][]*allocEntry
}

func newBucketAllocator() *bucketAllocator {
	return &bucketAllocator{classes: make([][]*allocEntry, len(classBoundaries)+1)}
}

// Request reserves storage for a value of the given width and returns
// a handle whose Offset() is valid only after Finalize.
func (a *bucketAllocator) Request(width int) *allocEntry {
	e := &allocEntry{width: width}
	c := classOf(width)
	a.classes[c] = append(a.classes[c], e)
	return e
}

// Finalize assigns concrete offsets, packing each class's entries
// contiguously in class order, and returns the total state width in
// bits.
func (a *bucketAllocator) Finalize() int {
	offset := 0
	for _, class := range a.classes {
		for _, e := range class {
			e.offset = offset
			offset += e.width
		}
	}
	return offset
}
