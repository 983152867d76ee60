// Package cmd implements the command-line interface for mailharvest.
//
// This package provides the following commands:
//   - run: Run the pipeline stages in order (the default command)
//   - extract: Extract attachments from matching messages
//   - filter-unwanted: Delete already-written files matching the exclusion set
//   - prune-empty-dirs: Remove empty directories under the output root
//   - auth: Run the Google authorization-code exchange
//   - version: Display version information
package cmd
