// Package enrich fetches one attribute per grid cell from an external lookup
// service using a fixed pool of workers. The cell sequence is split into
// disjoint contiguous index ranges, one per worker, so each cell has exactly
// one writer and the join barrier is the only synchronization point.
package enrich
