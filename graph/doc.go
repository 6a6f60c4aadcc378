/*
Package graph provides a small generic dependency graph.

Vertices keep insertion order so that every traversal is repeatable. The
package offers topological ordering with cycle detection, Tarjan strongly
connected components and Graphviz rendering. The migration planner uses it
both for versions and for the clusters built from them.
*/
package graph
