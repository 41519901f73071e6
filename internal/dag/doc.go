// Package dag holds the dependency graph of an optimization run. The
// pipeline manager adds one node per command and one edge per declared
// requirement, then uses the graph to reject cycles and to check that the
// linear order it hands to pipelines respects every edge.
package dag
