// Package mcp defines the client-side subset of the Model Context Protocol
// message vocabulary: method identifiers, the initialization handshake
// payloads, and the tool catalog types returned by tools/list and
// tools/call.
//
// The types here are plain JSON-mapped structs. They carry no transport or
// correlation behavior; encoding and delivery is the job of the session
// layer in the root package.
package mcp
