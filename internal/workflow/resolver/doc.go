// Package resolver builds the project dependency graph for a workspace. It
// produces the topological order the scheduler consumes and the relative
// references the config generator writes into each project's compiler config.
package resolver
