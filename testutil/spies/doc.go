// Package spies provides recording implementations of the observability interfaces for tests.
package spies
