package mm

import "github.com/jrmenzel/vimix/internal/common"

// sizeClasses are the slab size classes of spec.md §4.2: 16B, 32B,
// 64B, ... up to one quarter of a page.
var sizeClasses = func() []int {
	var cs []int
	for sz := 16; sz <= PGSIZE/4; sz *= 2 {
		cs = append(cs, sz)
	}
	return cs
}()

type freeObj struct {
	next int // offset within the slab page, -1 = end
}

// slab is one page carved into fixed-size objects of a single class.
type slab struct {
	pa       common.Pa_t
	class    int
	freeHead int // offset of first free object, -1 = full
	inUse    int
}

// SlabAllocator layers fixed-size-object caches over an Allocator, the
// kmalloc/kfree half of spec.md §4.2.
type SlabAllocator struct {
	pages   *Allocator
	classes map[int][]*slab // size class -> slabs with free space
	owner   map[common.Pa_t]*slab
}

func NewSlabAllocator(pages *Allocator) *SlabAllocator {
	return &SlabAllocator{
		pages:   pages,
		classes: make(map[int][]*slab),
		owner:   make(map[common.Pa_t]*slab),
	}
}

func classFor(n int) (int, bool) {
	for _, c := range sizeClasses {
		if n <= c {
			return c, true
		}
	}
	return 0, false
}

// Kmalloc rounds n up to the next size class and returns an object from
// the owning slab, or a full page if n exceeds the largest class.
func (s *SlabAllocator) Kmalloc(n int) (common.Pa_t, bool) {
	class, ok := classFor(n)
	if !ok {
		return s.pages.AllocPages(0, false)
	}
	list := s.classes[class]
	for _, sl := range list {
		if sl.freeHead != -1 {
			return s.takeFrom(sl), true
		}
	}
	pa, ok := s.pages.AllocPages(0, false)
	if !ok {
		return 0, false
	}
	sl := s.newSlab(pa, class)
	s.classes[class] = append(s.classes[class], sl)
	return s.takeFrom(sl), true
}

func (s *SlabAllocator) newSlab(pa common.Pa_t, class int) *slab {
	n := PGSIZE / class
	buf := s.pages.Bytes(pa, PGSIZE)
	// lay out an intrusive free list across the page's objects
	for i := 0; i < n; i++ {
		var next int32
		if i == n-1 {
			next = -1
		} else {
			next = int32(i + 1)
		}
		putInt32(buf[i*class:], next)
	}
	sl := &slab{pa: pa, class: class, freeHead: 0}
	s.owner[pa] = sl
	return sl
}

func (s *SlabAllocator) takeFrom(sl *slab) common.Pa_t {
	buf := s.pages.Bytes(sl.pa, PGSIZE)
	off := sl.freeHead
	sl.freeHead = int(getInt32(buf[off*sl.class:]))
	sl.inUse++
	return sl.pa + common.Pa_t(off*sl.class)
}

// Kfree inspects alignment: page-aligned addresses go back to the buddy
// allocator, others go to their owning slab.
func (s *SlabAllocator) Kfree(pa common.Pa_t) {
	if pa%PGSIZE == 0 {
		if _, ok := s.owner[pa]; !ok {
			s.pages.FreePages(pa, 0)
			return
		}
	}
	pageBase := pa - pa%PGSIZE
	sl, ok := s.owner[pageBase]
	if !ok {
		panic("mm.Kfree: address not owned by any slab or page")
	}
	off := int(pa - sl.pa)
	buf := s.pages.Bytes(sl.pa, PGSIZE)
	putInt32(buf[off:], int32(sl.freeHead))
	sl.freeHead = off / sl.class
	sl.inUse--
	if sl.inUse == 0 {
		s.retireSlab(sl)
	}
}

func (s *SlabAllocator) retireSlab(sl *slab) {
	list := s.classes[sl.class]
	for i, c := range list {
		if c == sl {
			s.classes[sl.class] = append(list[:i], list[i+1:]...)
			break
		}
	}
	delete(s.owner, sl.pa)
	s.pages.FreePages(sl.pa, 0)
}

func putInt32(b []byte, v int32) {
	u := uint32(v)
	b[0] = byte(u)
	b[1] = byte(u >> 8)
	b[2] = byte(u >> 16)
	b[3] = byte(u >> 24)
}

func getInt32(b []byte) int32 {
	u := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	return int32(u)
}
