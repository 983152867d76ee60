// Package google provides OAuth2 credential management for the Gmail API.
//
// The Manager owns the full credential lifecycle: the initial
// authorization-code exchange, durable JSON persistence, and transparent
// refresh. The rest of the application only ever asks it for an
// authenticated HTTP client.
package google
