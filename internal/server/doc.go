// Package server wires and runs the sync server's HTTP transport.
//
// It composes the root router from the API, realtime and operational
// endpoints and orchestrates startup, signal handling, and graceful
// shutdown.
package server
