// Package extract implements the attachment pipeline: enumerate mail
// matching a query, decode each message's MIME tree, fetch every real
// attachment, validate and filter its filename, and write the bytes to
// a per-sender directory. Two maintenance stages clean up an existing
// output tree: filter-unwanted deletes files matching the exclusion
// set, prune-empty-dirs removes directories left empty.
package extract
