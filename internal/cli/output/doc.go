// Package output renders command results for the credvault CLI.
//
// Results are plain structs. The table formatter reads `table` struct tags
// ("-" hides a field, "wide" shows it only in wide mode), while the JSON
// and YAML formatters use the usual encoding tags.
package output
