// Package dag tracks the dependency edges between loaded plugins. An edge
// from a provider to a consumer means the consumer holds a counted
// reference to the provider, so a cycle would keep every plugin on it
// loaded forever. The host asks WouldCycle before wiring an edge and uses
// TopologicalSort to initialise providers before their consumers.
package dag
