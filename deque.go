package segmap

// linkSet abstracts the pair of entry fields a deque is threaded through,
// so the same deque implementation serves both the access-order ordering
// and the write-order ordering without duplicating the list logic per
// field pair.
type linkSet struct {
	prev    func(e *entry) *entry
	setPrev func(e, p *entry)
	next    func(e *entry) *entry
	setNext func(e, n *entry)
}

var accessLinks = linkSet{
	prev:    func(e *entry) *entry { return e.accessPrev },
	setPrev: func(e, p *entry) { e.accessPrev = p },
	next:    func(e *entry) *entry { return e.accessNext },
	setNext: func(e, n *entry) { e.accessNext = n },
}

var writeLinks = linkSet{
	prev:    func(e *entry) *entry { return e.writePrev },
	setPrev: func(e, p *entry) { e.writePrev = p },
	next:    func(e *entry) *entry { return e.writeNext },
	setNext: func(e, n *entry) { e.writeNext = n },
}

// intrusiveDeque is a circular doubly-linked list anchored on a sentinel
// entry, threaded entirely through the link fields of real entries (no
// auxiliary node is allocated per member). An entry is a member iff its
// next link under this link set is non-nil, which makes contains O(1) —
// the same check the recency-buffer drain relies on. Every method here
// assumes the owning segment's lock is held; only the segment that owns a
// deque ever touches it.
type intrusiveDeque struct {
	links    linkSet
	sentinel *entry
}

func newIntrusiveDeque(links linkSet) *intrusiveDeque {
	d := &intrusiveDeque{links: links, sentinel: &entry{}}
	d.links.setNext(d.sentinel, d.sentinel)
	d.links.setPrev(d.sentinel, d.sentinel)
	return d
}

func (d *intrusiveDeque) contains(e *entry) bool {
	return d.links.next(e) != nil
}

func (d *intrusiveDeque) unlink(e *entry) {
	p := d.links.prev(e)
	if p == nil {
		return // not linked
	}
	n := d.links.next(e)
	d.links.setNext(p, n)
	d.links.setPrev(n, p)
	d.links.setPrev(e, nil)
	d.links.setNext(e, nil)
}

func (d *intrusiveDeque) linkAtTail(e *entry) {
	tail := d.links.prev(d.sentinel)
	d.links.setNext(tail, e)
	d.links.setPrev(e, tail)
	d.links.setNext(e, d.sentinel)
	d.links.setPrev(d.sentinel, e)
}

// offer unlinks e if already present, then relinks it at the tail — the
// "most recently used" end.
func (d *intrusiveDeque) offer(e *entry) {
	d.unlink(e)
	d.linkAtTail(e)
}

// peek returns the head (least-recently-used) entry without removing it.
func (d *intrusiveDeque) peek() *entry {
	n := d.links.next(d.sentinel)
	if n == d.sentinel {
		return nil
	}
	return n
}

func (d *intrusiveDeque) poll() *entry {
	e := d.peek()
	if e != nil {
		d.unlink(e)
	}
	return e
}

func (d *intrusiveDeque) remove(e *entry) {
	d.unlink(e)
}

// replace splices newE into oldE's position, preserving its neighbors.
// Used when a defensive clone of a chain entry takes over as the entry
// object a deque member refers to (expand's trailing-run reuse, remove's
// preceding-entry clone), so deque membership keeps tracking the entry
// that is actually reachable from the table.
func (d *intrusiveDeque) replace(oldE, newE *entry) {
	p := d.links.prev(oldE)
	if p == nil {
		return // oldE was not linked; nothing to carry over
	}
	n := d.links.next(oldE)
	d.links.setNext(p, newE)
	d.links.setPrev(n, newE)
	d.links.setPrev(newE, p)
	d.links.setNext(newE, n)
	d.links.setPrev(oldE, nil)
	d.links.setNext(oldE, nil)
}

func (d *intrusiveDeque) clear() {
	d.links.setNext(d.sentinel, d.sentinel)
	d.links.setPrev(d.sentinel, d.sentinel)
}

// members returns every entry currently linked, head to tail. Used only by
// tests asserting the deque-membership invariant; never on a hot path.
func (d *intrusiveDeque) members() []*entry {
	var out []*entry
	for e := d.links.next(d.sentinel); e != d.sentinel; e = d.links.next(e) {
		out = append(out, e)
	}
	return out
}
