// Package anuris is the core agent orchestration runtime of a terminal coding
// assistant. It runs a bounded model/tool round loop against a chat
// completions endpoint, executing the model's tool calls inside a sandboxed
// workspace until the model produces a final answer.
//
// # Quick Start
//
// Build an executor with the capabilities you want, then a runner:
//
//	client, _ := openaicompat.New(openaicompat.Config{
//		BaseURL: "https://api.openai.com",
//		APIKey:  key,
//		Model:   "gpt-4.1",
//	})
//	exec := anuris.NewExecutor(ws,
//		anuris.WithTools(file.New(ws), shell.New(ws)),
//		anuris.WithTaskBoard(taskboard.New(filepath.Join(ws, ".anuris_tasks"))),
//		anuris.WithSkills(skill.NewLoader(ws)),
//		anuris.WithBackground(background.New(ws)),
//	)
//	runner := anuris.NewRunner(client, exec)
//	result, err := runner.Run(ctx, messages, nil, nil)
//
// # Core Interfaces
//
// The root package defines the contracts all components implement:
//
//   - [CompletionClient]: provider-normalizing chat backend
//   - [Tool]: pluggable capability for LLM function calling
//   - [Subagent]: fresh-context delegated child loop
//   - [TaskBoard], [SkillCatalog], [BackgroundRunner], [TeamOps]: executor
//     capabilities with snapshot accessors
//   - [Store]: session history persistence
//   - [Tracer]: span emission (OTEL-backed implementation in observer)
//
// Around the inner loop the runtime layers a persistent task board, an
// in-memory todo list, a skill catalog, asynchronous background shell tasks,
// a team of teammate workers coordinating through file-backed inboxes, and a
// two-level context compactor. Terminal rendering, CLI parsing, and
// attachment ingestion are owned by the host.
package anuris
