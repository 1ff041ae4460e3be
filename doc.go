// Package segmap implements a concurrent, in-process associative map built
// the way java.util.concurrent.ConcurrentHashMap's segmented table is built:
// a fixed array of independently-locked segments, each owning a private
// power-of-two bucket-chain hash table, an access-order and/or write-order
// intrusive deque, a lock-free recency buffer folding unlocked reads back
// into LRU order, and reclamation queues feeding from weak/soft references.
//
// On top of that base it layers everything guava-sub000's LocalCache adds:
// size-bounded eviction, write- or access-based expiration, removal
// notifications, and loader-backed on-demand computation that collapses
// concurrent misses for the same key onto a single call.
package segmap
