// Command anuris runs one agent turn against a configured OpenAI-compatible
// endpoint: it wires the workspace sandbox, the tool executor, the context
// compactor, and the session store, runs the prompt, and prints the final
// answer.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	anuris "github.com/anuris-ai/anuris"
	"github.com/anuris-ai/anuris/internal/config"
	"github.com/anuris-ai/anuris/internal/workspace"
	"github.com/anuris-ai/anuris/observer"
	"github.com/anuris-ai/anuris/provider/openaicompat"
	"github.com/anuris-ai/anuris/store/postgres"
	"github.com/anuris-ai/anuris/store/sqlite"
	"github.com/anuris-ai/anuris/tools/background"
	"github.com/anuris-ai/anuris/tools/file"
	"github.com/anuris-ai/anuris/tools/shell"
	"github.com/anuris-ai/anuris/tools/skill"
	"github.com/anuris-ai/anuris/tools/subagent"
	"github.com/anuris-ai/anuris/tools/taskboard"
	"github.com/anuris-ai/anuris/tools/team"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath   = flag.String("config", os.Getenv("ANURIS_CONFIG"), "config file path")
		apiKey       = flag.String("api-key", "", "API key")
		model        = flag.String("model", "", "model name")
		baseURL      = flag.String("base-url", "", "API base URL")
		proxyAddr    = flag.String("proxy", "", "proxy server address (e.g. socks5://127.0.0.1:7890)")
		temperature  = flag.Float64("temperature", -1, "sampling temperature")
		reasoning    = flag.String("reasoning", "", "enable or disable provider thinking mode (on|off)")
		systemPrompt = flag.String("system-prompt", "", "system prompt text or @file path")
		workspaceDir = flag.String("workspace", "", "workspace root directory")
		maxRounds    = flag.Int("max-rounds", 0, "agent round budget")
		sessionID    = flag.String("session", "", "resume the session with this id")
		listSessions = flag.Bool("sessions", false, "list stored sessions and exit")
		debug        = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	cfg := config.Load(*configPath)
	applyFlags(&cfg, *apiKey, *model, *baseURL, *proxyAddr, *temperature, *reasoning, *systemPrompt, *workspaceDir, *maxRounds, *debug)

	level := slog.LevelInfo
	if cfg.Agent.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if cfg.LLM.BaseURL == "" {
		return fmt.Errorf("base URL is required (flag -base-url, config llm.base_url, or ANURIS_BASE_URL)")
	}
	if cfg.LLM.Model == "" {
		return fmt.Errorf("model is required (flag -model, config llm.model, or ANURIS_MODEL)")
	}

	ctx := context.Background()

	var tracer anuris.Tracer
	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		instruments, shutdown, err := observer.Init(ctx)
		if err != nil {
			return fmt.Errorf("init observer: %w", err)
		}
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutCtx)
		}()
		inst = instruments
		tracer = observer.NewTracer()
	}

	var client anuris.CompletionClient
	rawClient, err := openaicompat.New(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL,
		openaicompat.WithProxy(cfg.LLM.Proxy),
		openaicompat.WithTemperature(cfg.LLM.Temperature),
		openaicompat.WithReasoning(cfg.LLM.Reasoning),
		openaicompat.WithClientLogger(logger),
		openaicompat.WithClientTracer(tracer),
	)
	if err != nil {
		return fmt.Errorf("init client: %w", err)
	}
	client = rawClient
	if inst != nil {
		client = observer.WrapClient(rawClient, inst)
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if *listSessions {
		return printSessions(ctx, store)
	}

	prompt, err := readPrompt(flag.Args())
	if err != nil {
		return err
	}

	root, err := workspace.NewRoot(cfg.Workspace.Path)
	if err != nil {
		return fmt.Errorf("resolve workspace: %w", err)
	}

	board, err := taskboard.New(filepath.Join(root.Path(), ".anuris_tasks"))
	if err != nil {
		return fmt.Errorf("init task board: %w", err)
	}
	teamManager, err := team.NewManager(root.Path(), team.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("init team manager: %w", err)
	}
	teamManager.SetWorkerRunner(team.NewWorkerRunner(client, root, teamManager,
		team.WithBoard(board),
		team.WithWorkerLogger(logger),
		team.WithWorkerTracer(tracer),
	))

	fileTool := anuris.Tool(file.New(root))
	shellTool := anuris.Tool(shell.New(root))
	if inst != nil {
		fileTool = observer.WrapTool(fileTool, inst)
		shellTool = observer.WrapTool(shellTool, inst)
	}

	executor := anuris.NewExecutor(
		anuris.WithTools(fileTool, shellTool),
		anuris.WithTodo(anuris.NewTodoManager()),
		anuris.WithTaskBoard(board),
		anuris.WithSkills(skill.NewLoader(root.Path())),
		anuris.WithBackground(background.New(root)),
		anuris.WithTeam(teamManager),
		anuris.WithSubagent(subagent.New(client, root, cfg.Agent.MaxRounds,
			subagent.WithLogger(logger), subagent.WithTracer(tracer))),
		anuris.WithExecutorLogger(logger),
		anuris.WithExecutorTracer(tracer),
	)

	compactor := anuris.NewCompactor(client,
		filepath.Join(root.Path(), ".anuris_transcripts"),
		anuris.WithCompactorLogger(logger))

	runnerOpts := []anuris.RunnerOption{
		anuris.WithMaxRounds(cfg.Agent.MaxRounds),
		anuris.WithCompactor(compactor),
		anuris.WithRequireReasoning(rawClient.Family() == openaicompat.FamilyDeepSeek),
		anuris.WithRunnerLogger(logger),
		anuris.WithRunnerTracer(tracer),
	}
	if cfg.Agent.SystemPrompt != "" {
		runnerOpts = append(runnerOpts, anuris.WithInstruction(cfg.Agent.SystemPrompt))
	}
	runner := anuris.NewRunner(client, executor, runnerOpts...)

	session := anuris.Session{ID: anuris.NewID(), Title: title(prompt)}
	if *sessionID != "" {
		session, err = store.LoadSession(ctx, *sessionID)
		if err != nil {
			return err
		}
	}
	messages := append(session.Messages, anuris.UserMessage(prompt))

	start := time.Now()
	result, err := runner.Run(ctx, messages, nil, func(event string) {
		fmt.Fprintln(os.Stderr, event)
	})
	teamManager.Wait()
	if inst != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		inst.RecordTurn(ctx, status, result.Rounds, time.Since(start))
	}
	if err != nil {
		return err
	}

	fmt.Println(result.FinalText)

	session.Messages = append(messages, anuris.AssistantMessage(result.FinalText))
	if saveErr := store.SaveSession(ctx, session); saveErr != nil {
		logger.Warn("save session failed", "error", saveErr)
	}
	return nil
}

func applyFlags(cfg *config.Config, apiKey, model, baseURL, proxy string, temperature float64, reasoning, systemPrompt, workspaceDir string, maxRounds int, debug bool) {
	if apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if model != "" {
		cfg.LLM.Model = model
	}
	if baseURL != "" {
		cfg.LLM.BaseURL = baseURL
	}
	if proxy != "" {
		cfg.LLM.Proxy = proxy
	}
	if temperature >= 0 {
		cfg.LLM.Temperature = temperature
	}
	switch reasoning {
	case "on":
		cfg.LLM.Reasoning = true
	case "off":
		cfg.LLM.Reasoning = false
	}
	if systemPrompt != "" {
		cfg.Agent.SystemPrompt = systemPrompt
	}
	if workspaceDir != "" {
		cfg.Workspace.Path = workspaceDir
	}
	if maxRounds > 0 {
		cfg.Agent.MaxRounds = maxRounds
	}
	if debug {
		cfg.Agent.Debug = true
	}
}

// openStore builds the configured session store. The returned close function
// is safe to call once.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (anuris.Store, func(), error) {
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Store.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		store := postgres.New(pool)
		if err := store.Init(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("init postgres store: %w", err)
		}
		return store, pool.Close, nil
	default:
		store := sqlite.New(cfg.Store.Path, sqlite.WithLogger(logger))
		if err := store.Init(ctx); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("init sqlite store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	}
}

// readPrompt takes the prompt from the remaining args, or from stdin when
// piped.
func readPrompt(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	info, err := os.Stdin.Stat()
	if err == nil && info.Mode()&os.ModeCharDevice == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		if prompt := strings.TrimSpace(string(data)); prompt != "" {
			return prompt, nil
		}
	}
	return "", fmt.Errorf("no prompt given (pass it as arguments or on stdin)")
}

func printSessions(ctx context.Context, store anuris.Store) error {
	sessions, err := store.ListSessions(ctx, 20)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions.")
		return nil
	}
	for _, s := range sessions {
		fmt.Printf("%s  %s  (%d messages)\n", s.ID, s.Title, len(s.Messages))
	}
	return nil
}

func title(prompt string) string {
	r := []rune(strings.TrimSpace(prompt))
	if len(r) > 60 {
		return string(r[:60])
	}
	return string(r)
}
