// Package model provides YAML based definitions of models and audits which implement the
// snapshot.Model and snapshot.Audit collaborators.
//
// Schedules are standard five-field cron expressions or descriptors like "@daily", evaluated in UTC.
// Queries are opaque text: rendering normalizes whitespace and strips comments, nothing is parsed.
package model
