// Package fixtures provides model definitions and fixed clocks for tests.
package fixtures
