// Package gc implements garbage collection for a replicated container
// document: a graph of data stores, nested shared objects, and attachment
// blobs mutated concurrently by many clients.
//
// The collector determines which nodes are unreachable from the container
// roots, tracks how long each has been unreachable, and reclaims them in
// stages: unreferenced nodes become Inactive (advisory), then
// TombstoneReady (access denied), then SweepReady (physically deleted).
// Reachability information arrives asynchronously, so every threshold is
// sized such that no live session could still hold a reference; any
// ambiguity resolves toward keeping the node.
//
// Exactly one client, the summarizer, runs GC for a container at a time.
// GC state is persisted incrementally inside the container summary: blob
// categories that did not change since the last acknowledged summary are
// written as handles to the prior summary's blobs.
//
// Usage:
//
//	collector := gc.New(runtime, reclaimer, cfg, gc.WithMetrics(m))
//	if err := collector.InitializeBaseState(ctx, base); err != nil { ... }
//	stats, err := collector.CollectGarbage(ctx, gc.RunOptions{})
//	tree, err := collector.Summarize(false, true)
package gc
