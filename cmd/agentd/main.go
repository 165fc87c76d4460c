// Command agentd is the reference wiring for a single coding-agent
// aggregate: a sqlite (or postgres) event store, a local-filesystem
// sandbox, the file/shell/done tool set, and the Runtime that drives them
// from one user message through to task completion.
//
// Provider adapters (Anthropic, OpenAI, ...) are outside this module's
// scope, so agentd wires in echoProvider, a scripted stand-in, rather than
// a real LLM backend. Swap it for a real Provider in a downstream binary.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dabgent/dabgent"
	"github.com/dabgent/dabgent/internal/config"
	"github.com/dabgent/dabgent/observer"
	"github.com/dabgent/dabgent/sandbox/local"
	"github.com/dabgent/dabgent/store/postgres"
	"github.com/dabgent/dabgent/store/sqlite"
	"github.com/dabgent/dabgent/tools/done"
	"github.com/dabgent/dabgent/tools/file"
	"github.com/dabgent/dabgent/tools/shell"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg := config.Load(os.Getenv("AGENTD_CONFIG"))
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var tracer dabgent.Tracer
	if cfg.Observer.Enabled {
		inst, shutdown, err := observer.Init(ctx)
		if err != nil {
			log.Fatalf("observer init: %v", err)
		}
		defer shutdown(context.Background())
		tracer = observer.NewTracer()
		_ = inst
		logger.Info("observability enabled")
	}

	store, closeStore, err := openStore(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer closeStore()

	if err := os.MkdirAll(cfg.Sandbox.WorkspaceRoot, 0o750); err != nil {
		log.Fatalf("create workspace root: %v", err)
	}
	newSandbox := func(ctx context.Context) (dabgent.Sandbox, error) {
		dir, err := os.MkdirTemp(cfg.Sandbox.WorkspaceRoot, "agent-*")
		if err != nil {
			return nil, err
		}
		return local.New(dir), nil
	}

	tools := append([]dabgent.Tool{}, file.Tools()...)
	tools = append(tools, shell.Tool(), done.Tool())

	handler := dabgent.NewHandler[*dabgent.AgentState, dabgent.AgentCommand, dabgent.AgentEvent, dabgent.AgentServices](
		"coding-agent", store,
		func() *dabgent.AgentState { return dabgent.NewAgentState(dabgent.NewCodingAgent(cfg.LLM.DoneTool)) },
		dabgent.AgentServices{},
		dabgent.WithHandlerLogger[*dabgent.AgentState, dabgent.AgentCommand, dabgent.AgentEvent, dabgent.AgentServices](logger),
		optionalHandlerTracer(tracer),
	)

	queue := dabgent.NewPollingQueue[dabgent.AgentEvent](store, cfg.Runtime.PollInterval)
	listener, err := queue.Listen(ctx, dabgent.Query{StreamID: cfg.Stream.ID, AggregateType: "coding-agent"}, dabgent.DefaultListenerBuffer)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}

	toolDefs := toolDefinitions(tools)
	llmHandler := dabgent.NewLLMHandler(&echoProvider{}, cfg.LLM.Model, toolDefs,
		dabgent.WithLLMHandlerLogger(logger))
	toolHandler := dabgent.NewToolHandler(tools, newSandbox,
		dabgent.WithToolHandlerLogger(logger))

	runtime := dabgent.NewRuntime[*dabgent.AgentState, dabgent.AgentCommand, dabgent.AgentEvent, dabgent.AgentServices](handler, listener)
	runtime.WithHandler(llmHandler)
	runtime.WithHandler(toolHandler)
	runtime.WithHandler(&dabgent.FinishHandler{})

	go func() {
		if err := queue.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("polling queue stopped", "error", err)
		}
	}()

	rtHandle := dabgent.Spawn(ctx, runtime, dabgent.SpawnLogger(logger))

	if err := rtHandle.Await(ctx); err != nil {
		logger.Error("runtime stopped", "error", err)
	}
}

func openStore(ctx context.Context, cfg config.DatabaseConfig) (dabgent.EventStore[dabgent.AgentEvent], func(), error) {
	switch cfg.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		st, err := postgres.New[dabgent.AgentEvent](ctx, pool, dabgent.DecodeAgentEvent)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return st, pool.Close, nil
	default:
		st, err := sqlite.New[dabgent.AgentEvent](ctx, cfg.Path, dabgent.DecodeAgentEvent)
		if err != nil {
			return nil, nil, err
		}
		return st, func() { st.Close() }, nil
	}
}

func toolDefinitions(tools []dabgent.Tool) []dabgent.ToolDefinition {
	defs := make([]dabgent.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = t.Definition()
	}
	return defs
}

func optionalHandlerTracer(t dabgent.Tracer) dabgent.HandlerOption[*dabgent.AgentState, dabgent.AgentCommand, dabgent.AgentEvent, dabgent.AgentServices] {
	return dabgent.WithHandlerTracer[*dabgent.AgentState, dabgent.AgentCommand, dabgent.AgentEvent, dabgent.AgentServices](t)
}

// echoProvider is a scripted stand-in for a real LLM backend: it always
// calls the done tool immediately, acknowledging whatever the last user
// message said. Swap it for a real Provider adapter in production wiring.
type echoProvider struct{}

func (echoProvider) Name() string { return "echo" }

func (echoProvider) Completion(_ context.Context, req dabgent.CompletionRequest) (dabgent.CompletionResponse, error) {
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			last = req.Messages[i].Content
			break
		}
	}
	args, _ := json.Marshal(map[string]string{"summary": "handled: " + last})
	return dabgent.CompletionResponse{
		Content:   "acknowledged",
		ToolCalls: []dabgent.ToolCall{{ID: dabgent.NewID(), Name: done.Name, Args: args}},
	}, nil
}
