// Package dabgent is an event-sourced runtime for autonomous coding agents.
//
// Every state change is an event appended to a durable log; aggregates are
// rebuilt by folding that log, never by reading a mutable row. A coding
// agent is an aggregate: it accepts a user message, asks an LLM for a
// completion, runs any tool calls the LLM requested against an ephemeral
// sandbox, feeds the results back, and repeats until the agent reports the
// task done or the process is shut down.
//
// # Quick Start
//
// Wire a store, a provider, and a tool set, then drive the aggregate
// through a [Handler]:
//
//	store, _ := sqlite.New[dabgent.AgentEvent](ctx, "agentd.db", dabgent.DecodeAgentEvent)
//	handler := dabgent.NewHandler[*dabgent.AgentState, dabgent.AgentCommand, dabgent.AgentEvent, dabgent.AgentServices](
//		"coding-agent", store,
//		func() *dabgent.AgentState { return dabgent.NewAgentState(dabgent.NewCodingAgent("done")) },
//		dabgent.AgentServices{})
//
//	queue := dabgent.NewPollingQueue[dabgent.AgentEvent](store, 0)
//	listener, _ := queue.Listen(ctx, dabgent.Query{StreamID: streamID, AggregateType: "coding-agent"}, 0)
//	go queue.Run(ctx)
//
//	runtime := dabgent.NewRuntime(handler, listener)
//	runtime.WithHandler(dabgent.NewLLMHandler(provider, "claude-opus", toolDefs))
//	runtime.WithHandler(dabgent.NewToolHandler(tools, newSandbox))
//	runtime.WithHandler(&dabgent.FinishHandler{})
//	go runtime.Start(ctx)
//
//	handler.Execute(ctx, streamID, aggregateID, dabgent.PutUserMessage{Content: "fix the failing test"}, dabgent.Metadata{})
//
// # Core Interfaces
//
// The root package defines the contracts every component implements:
//
//   - [Aggregate] — command handling and event folding for one aggregate type
//   - [EventStore] — append-only, optimistic-concurrency event persistence
//   - [Provider] — LLM backend (single-shot completion with tool calling)
//   - [Sandbox] — ephemeral execution environment for tool calls
//   - [InnerAgent] — domain-specific completion logic layered over [AgentState]
//
// # Included Implementations
//
// Stores: store/sqlite (single-writer, embedded), store/postgres (pgx pool).
// Sandboxes: sandbox/local (host-filesystem, for development and tests).
// Tools: tools/file, tools/shell, tools/done.
//
// See cmd/agentd for a complete reference wiring.
package dabgent
