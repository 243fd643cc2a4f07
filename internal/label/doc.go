// internal/label/doc.go

/*
Package label provides the canonical, immutable identity for build targets,
based on the format `cell//package/path:name#flavor,flavor`.

A label is a pure value: equality and ordering compare only the logical
tuple (cell, package, name, sorted flavors), never any filesystem
representation. The canonical string is computed once at construction, so
labels are cheap to compare, log, and use as map keys.
*/
package label
