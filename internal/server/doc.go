// Package server provides the HTTP server exposing a thread's append-only
// event log, the task store, and turn-engine-backed agent sessions.
//
// The server is the external surface of a single lace instance: every other
// package in this module (thread, task, turn, permission, provider, tool)
// is wired together here behind a small Chi router.
//
// # Core Components
//
//   - HTTP Server: Chi-based router with middleware for request ID, logging,
//     recovery, and CORS
//   - Thread Store: append-only event log per conversation thread
//   - Task Store: durable task records with note history
//   - Agent Sessions: turn-engine-backed conversations built on top of a
//     thread, driven by internal/session.Manager
//   - Event Streaming: Server-Sent Events (SSE) for real-time updates,
//     either global or scoped to a single thread
//
// # API Endpoints
//
//   - /thread/*: thread creation, lookup, children, and event log access
//   - /task/*: task creation, lookup, listing, and note appends
//   - /agent-session/*: turn-engine-backed conversations over a thread
//   - /event: global SSE stream of every published event
//   - /thread/{threadID}/event/stream: SSE stream scoped to one thread
//
// # Thread and Task Model
//
// A thread is an append-only log of ThreadEvents; nothing is ever mutated
// or deleted from it. An agent session drives a turn.Agent against a
// thread, appending events as the model streams a response and calls
// tools. Tasks are separate durable records threads can reference, each
// carrying its own note history.
//
// # Event System
//
// internal/event provides a process-local pub/sub bus. The server
// subscribes to it per SSE connection and relays matching events as they're
// published:
//   - thread.event: a new ThreadEvent was appended to some thread
//   - task.created / task.updated: task lifecycle changes
//   - permission.required / permission.replied: tool permission prompts
//   - file.edited: a file was modified by a tool call
//
// # Usage Example
//
//	config := server.DefaultConfig()
//	config.Port = 8080
//	config.Directory = "/path/to/project"
//
//	srv := server.New(config, appConfig, providerRegistry, toolRegistry, threadStore, taskStore)
//
//	if err := srv.Start(); err != nil {
//		log.Fatal(err)
//	}
//
// # Architecture Notes
//
// The server favors composition over inheritance: each major component
// (thread store, task store, agent session manager) is independently
// testable and may be nil in tests that don't exercise that slice of the
// API, in which case its routes are simply not mounted.
//
// # SSE Implementation
//
// The SSE implementation in sse.go is hand-rolled rather than built on a
// third-party package, since it is a thin adapter over internal/event's
// pub/sub bus rather than a general-purpose streaming protocol. It
// supports heartbeats, clean disconnect handling via request context, and
// thread-scoped event filtering.
package server
