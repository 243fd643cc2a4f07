// Package rulesrc loads target declarations from HCL rule files and turns
// them into graph deltas. A rule tree is a directory of *.build.hcl files;
// each file's directory relative to the tree root is its package path, and
// each `target "name" { ... }` block declares one target: its deps, its
// resource weights, and arbitrary metadata attributes carried verbatim into
// the graph.
package rulesrc
