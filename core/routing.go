package core

import (
	"time"
)

// PacketState tracks a packet through the forwarding layer.
type PacketState string

const (
	PacketInFlight  PacketState = "in_flight"
	PacketDelivered PacketState = "delivered"
	PacketDropped   PacketState = "dropped"
)

// DropReason classifies drops; all are normal outcomes, never fatal.
type DropReason string

const (
	DropNone       DropReason = ""
	DropNoRoute    DropReason = "no_route"
	DropBufferFull DropReason = "buffer_full"
	DropStaleRoute DropReason = "stale_route"
	DropPreempted  DropReason = "preempted"
)

// Packet is a unit of forwarded traffic.
type Packet struct {
	ID        int
	Src, Dst  int
	SizeBytes int
	Created   time.Time
	Holder    int
	Hops      int
	State     PacketState
	Drop      DropReason

	// Control marks control-plane traffic (patch and epidemic-control
	// packets), which may preempt queued data on buffer overflow.
	Control bool
	// Priority orders packets inside a buffer for preemption; lower is
	// less important.
	Priority int
}

// RouteOutcome is the per-tick result of routing one packet.
type RouteOutcome string

const (
	OutcomeAdvanced  RouteOutcome = "advanced"
	OutcomeDelivered RouteOutcome = "delivered"
	OutcomeDropped   RouteOutcome = "dropped"
)

// RoutingStats counts terminal outcomes for metrics.
type RoutingStats struct {
	Delivered int
	Dropped   map[DropReason]int
}

// RoutingEngine forwards packets one hop per tick over the current
// snapshot. Paths are computed with latency-weighted Dijkstra and
// cached per (holder, destination); the cache survives snapshot
// changes, and a cached next hop that no longer exists in the new
// snapshot drops the packet instead of silently rerouting it.
type RoutingEngine struct {
	BufferCapacity int

	snapshot *TopologySnapshot
	nextHop  map[[2]int]int
	buffers  map[int][]*Packet
	stats    RoutingStats
}

// DefaultBufferCapacity is the per-node queue depth in slots.
const DefaultBufferCapacity = 66000

// NewRoutingEngine constructs an engine with the given per-node buffer
// capacity; capacity <= 0 means unbounded.
func NewRoutingEngine(bufferCapacity int) *RoutingEngine {
	return &RoutingEngine{
		BufferCapacity: bufferCapacity,
		nextHop:        make(map[[2]int]int),
		buffers:        make(map[int][]*Packet),
		stats:          RoutingStats{Dropped: make(map[DropReason]int)},
	}
}

// SetSnapshot installs the topology the next Route calls forward over.
// Cached next hops are kept; they are validated against the new
// snapshot on use.
func (re *RoutingEngine) SetSnapshot(s *TopologySnapshot) {
	re.snapshot = s
}

// Stats returns terminal outcome counters.
func (re *RoutingEngine) Stats() RoutingStats { return re.stats }

// QueueLen reports the buffer occupancy of a node.
func (re *RoutingEngine) QueueLen(node int) int { return len(re.buffers[node]) }

// Route advances one packet by one hop. Terminal outcomes mutate the
// packet's State and Drop fields.
func (re *RoutingEngine) Route(p *Packet) RouteOutcome {
	if p.Holder == p.Dst {
		p.State = PacketDelivered
		re.stats.Delivered++
		return OutcomeDelivered
	}
	if re.snapshot == nil || !re.snapshot.Valid {
		return re.drop(p, DropNoRoute)
	}

	key := [2]int{p.Holder, p.Dst}
	next, cached := re.nextHop[key]
	if cached {
		// A cached hop that is gone from the current snapshot means
		// the path went stale with the topology; no implicit reroute.
		if !re.snapshot.HasEdge(p.Holder, next) {
			delete(re.nextHop, key)
			return re.drop(p, DropStaleRoute)
		}
	} else {
		path, _, ok := re.snapshot.ShortestPath(p.Holder, p.Dst)
		if !ok {
			return re.drop(p, DropNoRoute)
		}
		// Cache every hop of the computed path toward this destination.
		for i := 0; i < len(path)-1; i++ {
			re.nextHop[[2]int{path[i], p.Dst}] = path[i+1]
		}
		next = path[1]
	}

	if !re.enqueue(next, p) {
		return re.drop(p, DropBufferFull)
	}
	p.Holder = next
	p.Hops++
	return OutcomeAdvanced
}

// enqueue appends p to node's FIFO buffer. On overflow, data packets
// tail-drop; control packets preempt the lowest-priority queued item.
func (re *RoutingEngine) enqueue(node int, p *Packet) bool {
	q := re.buffers[node]
	if re.BufferCapacity <= 0 || len(q) < re.BufferCapacity {
		re.buffers[node] = append(q, p)
		return true
	}
	if !p.Control {
		return false
	}

	victim := -1
	for i, queued := range q {
		if queued.Control {
			continue
		}
		if victim == -1 || queued.Priority < q[victim].Priority {
			victim = i
		}
	}
	if victim == -1 {
		// Queue is all control traffic; even control tail-drops then.
		return false
	}
	evicted := q[victim]
	evicted.State = PacketDropped
	evicted.Drop = DropPreempted
	re.stats.Dropped[DropPreempted]++

	copy(q[victim:], q[victim+1:])
	q[len(q)-1] = p
	re.buffers[node] = q
	return true
}

// PathFor resolves the full forwarding path from src to dst under the
// engine's caching rules: cached next hops are reused while their edges
// survive in the current snapshot, and gaps are filled by fresh
// shortest-path computation. Used by multi-hop exploit delivery so the
// worm rides the same paths as regular traffic.
func (re *RoutingEngine) PathFor(src, dst int) ([]int, bool) {
	if re.snapshot == nil || !re.snapshot.Valid {
		return nil, false
	}
	if src == dst {
		return []int{src}, true
	}
	path := []int{src}
	cur := src
	limit := len(re.snapshot.Positions)
	for cur != dst {
		if len(path) > limit {
			return nil, false
		}
		key := [2]int{cur, dst}
		next, cached := re.nextHop[key]
		if !cached || !re.snapshot.HasEdge(cur, next) {
			sub, _, ok := re.snapshot.ShortestPath(cur, dst)
			if !ok {
				return nil, false
			}
			for i := 0; i < len(sub)-1; i++ {
				re.nextHop[[2]int{sub[i], dst}] = sub[i+1]
			}
			next = sub[1]
		}
		path = append(path, next)
		cur = next
	}
	return path, true
}

// Dequeue pops the oldest packet queued at node, if any.
func (re *RoutingEngine) Dequeue(node int) (*Packet, bool) {
	q := re.buffers[node]
	if len(q) == 0 {
		return nil, false
	}
	p := q[0]
	re.buffers[node] = q[1:]
	return p, true
}

func (re *RoutingEngine) drop(p *Packet, reason DropReason) RouteOutcome {
	p.State = PacketDropped
	p.Drop = reason
	re.stats.Dropped[reason]++
	return OutcomeDropped
}
