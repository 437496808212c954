// Package auth protects the management API with a single admin account.
//
// The account lives in config.yaml (security.admin): a username and an
// Argon2id PHC hash produced by "annunciator hash-password". A successful
// login yields a short-lived HS256 JWT that the API middleware checks on
// every management request. Command routes are never gated here; VMS
// integrations call them without credentials.
package auth
