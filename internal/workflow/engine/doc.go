// Package engine is the workspace context. It owns one regeneration pipeline
// per project (profile map, config and artifact streams, recompute loop,
// lifecycle controller), feeds changed projects through the dependency
// ordered queue, and runs builds on a bounded worker pool. Engine state is
// persisted so `weft status` can report on a session after it exits.
package engine
