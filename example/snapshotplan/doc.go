// Package main provides snapshotplan, a command line tool that loads model definitions, versions them into
// snapshots, persists them in a state store and prints or runs the backfill plan.
//
// Configuration is read from snapshotplan.yaml in the -config directory and from SNAPSHOTPLAN_* environment
// variables, e.g. SNAPSHOTPLAN_DATABASE_DSN.
//
//	snapshotplan -config ./deploy -start 2024-01-01 -end 2024-02-01
//	snapshotplan -config ./deploy -start 2024-01-01 -end 2024-02-01 -run
//	snapshotplan -config ./deploy -janitor
package main
