// Package webui embeds the browser management UI for speakers and groups.
//
// The UI is plain HTML and JavaScript talking to /api/* and the command
// routes. It is compiled into the binary with go:embed and mounted on the
// router's catch-all route when web.enabled is true.
package webui
