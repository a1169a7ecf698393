// Package logging provides file-based structured logging with rotation.
// The server speaks JSON-RPC on stdout, so logs go to a rotating file under
// the data directory (and optionally stderr) rather than standard streams.
package logging
