// Package scheduler hands out pending projects in dependency order. The order
// comes from the resolver's topological sort; the pending flags come from the
// engine whenever a project's generated artifacts change. Each flag is handed
// to exactly one consumer, so a project re-added while it builds is picked up
// again on the next cycle instead of running twice at once.
package scheduler
