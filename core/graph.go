package core

import (
	"container/heap"
	"sort"
)

// Shortest paths, hop search, and connectivity operate directly on the
// snapshot adjacency. Equal-cost paths resolve to the lowest predecessor
// id so replayed trials walk identical routes.

type pqItem struct {
	id   int
	dist float64
}

type pathQueue []pqItem

func (q pathQueue) Len() int { return len(q) }
func (q pathQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].id < q[j].id
}
func (q pathQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *pathQueue) Push(x any)        { *q = append(*q, x.(pqItem)) }
func (q *pathQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// ShortestPath runs Dijkstra over latency weights from src to dst.
// Equal-cost alternatives resolve to the lowest predecessor id at every
// decision point, so paths are reproducible across runs.
func (s *TopologySnapshot) ShortestPath(src, dst int) ([]int, float64, bool) {
	if _, ok := s.Positions[src]; !ok {
		return nil, 0, false
	}
	if _, ok := s.Positions[dst]; !ok {
		return nil, 0, false
	}
	if src == dst {
		return []int{src}, 0, true
	}

	dist := map[int]float64{src: 0}
	prev := map[int]int{}
	done := map[int]bool{}

	q := &pathQueue{{id: src, dist: 0}}
	for q.Len() > 0 {
		cur := heap.Pop(q).(pqItem)
		if done[cur.id] {
			continue
		}
		done[cur.id] = true
		if cur.id == dst {
			break
		}
		for _, nb := range s.Neighbors(cur.id) {
			nd := cur.dist + nb.LatencySec
			old, seen := dist[nb.ID]
			if !seen || nd < old || (nd == old && cur.id < prev[nb.ID]) {
				dist[nb.ID] = nd
				prev[nb.ID] = cur.id
				heap.Push(q, pqItem{id: nb.ID, dist: nd})
			}
		}
	}

	if !done[dst] {
		return nil, 0, false
	}
	path := []int{dst}
	for at := dst; at != src; {
		at = prev[at]
		path = append(path, at)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, dist[dst], true
}

// HopsWithin returns every node reachable from src within maxHops,
// mapped to its hop distance. src itself is excluded.
func (s *TopologySnapshot) HopsWithin(src, maxHops int) map[int]int {
	out := map[int]int{}
	if maxHops <= 0 {
		return out
	}
	frontier := []int{src}
	seen := map[int]bool{src: true}
	for h := 1; h <= maxHops && len(frontier) > 0; h++ {
		var next []int
		for _, u := range frontier {
			for _, nb := range s.Neighbors(u) {
				if seen[nb.ID] {
					continue
				}
				seen[nb.ID] = true
				out[nb.ID] = h
				next = append(next, nb.ID)
			}
		}
		frontier = next
	}
	return out
}

// Components partitions the snapshot's nodes into connected components
// with a union-find, each component sorted by id, components ordered by
// their smallest member.
func (s *TopologySnapshot) Components() [][]int {
	ids := s.NodeIDs()
	parent := make(map[int]int, len(ids))
	for _, id := range ids {
		parent[id] = id
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if rb < ra {
			ra, rb = rb, ra
		}
		parent[rb] = ra
	}
	for _, l := range s.Links {
		union(l.A, l.B)
	}

	byRoot := map[int][]int{}
	for _, id := range ids {
		r := find(id)
		byRoot[r] = append(byRoot[r], id)
	}
	roots := make([]int, 0, len(byRoot))
	for r := range byRoot {
		roots = append(roots, r)
	}
	sort.Ints(roots)
	out := make([][]int, 0, len(roots))
	for _, r := range roots {
		sort.Ints(byRoot[r])
		out = append(out, byRoot[r])
	}
	return out
}

// hopDistancesFrom is a full BFS used by the path-length metrics.
func (s *TopologySnapshot) hopDistancesFrom(src int) map[int]int {
	dist := map[int]int{src: 0}
	frontier := []int{src}
	for len(frontier) > 0 {
		var next []int
		for _, u := range frontier {
			for _, nb := range s.Neighbors(u) {
				if _, seen := dist[nb.ID]; seen {
					continue
				}
				dist[nb.ID] = dist[u] + 1
				next = append(next, nb.ID)
			}
		}
		frontier = next
	}
	return dist
}
