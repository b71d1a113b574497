// Package domain holds the core types and interfaces shared across the
// application: the wire envelope, connection abstraction, widget rendering
// contracts, repositories, and sentinel errors. It has no dependencies on
// other internal packages.
package domain
