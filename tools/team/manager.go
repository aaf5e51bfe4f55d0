package team

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	anuris "github.com/anuris-ai/anuris"
)

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Member is one roster entry in the persisted team config.
type Member struct {
	Name   string `json:"name"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

type config struct {
	TeamName string   `json:"team_name"`
	Members  []Member `json:"members"`
}

// WorkerRunner runs one teammate worker to completion. The manager invokes
// it on its own goroutine per spawn.
type WorkerRunner func(name, role, prompt string) error

// Manager owns the team roster file, the inbox bus, and the in-memory
// shutdown and plan trackers. It is the only writer to its config file;
// teammates interact through the bus and the status setters.
type Manager struct {
	bus    *Bus
	logger *slog.Logger

	mu               sync.Mutex
	configPath       string
	config           config
	workerRunner     WorkerRunner
	workers          sync.WaitGroup
	shutdownRequests map[string]*shutdownRequest
	planRequests     map[string]*planRequest
}

type shutdownRequest struct {
	Target string `json:"target"`
	Status string `json:"status"`
}

type planRequest struct {
	From     string `json:"from"`
	Status   string `json:"status"`
	Plan     string `json:"plan"`
	Feedback string `json:"feedback,omitempty"`
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a team manager storing state under
// <workspaceRoot>/.anuris_team.
func NewManager(workspaceRoot string, opts ...ManagerOption) (*Manager, error) {
	teamDir := filepath.Join(workspaceRoot, ".anuris_team")
	if err := os.MkdirAll(teamDir, 0o755); err != nil {
		return nil, fmt.Errorf("create team dir: %w", err)
	}
	bus, err := NewBus(filepath.Join(teamDir, "inbox"))
	if err != nil {
		return nil, err
	}

	m := &Manager{
		bus:              bus,
		logger:           nopLogger,
		configPath:       filepath.Join(teamDir, "config.json"),
		shutdownRequests: make(map[string]*shutdownRequest),
		planRequests:     make(map[string]*planRequest),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.config = m.loadConfig()
	return m, nil
}

// SetWorkerRunner attaches the teammate worker callback. Spawn fails until
// one is set.
func (m *Manager) SetWorkerRunner(r WorkerRunner) {
	m.mu.Lock()
	m.workerRunner = r
	m.mu.Unlock()
}

// Bus returns the inbox bus, used by teammate workers.
func (m *Manager) Bus() *Bus {
	return m.bus
}

// Wait blocks until all spawned workers have exited.
func (m *Manager) Wait() {
	m.workers.Wait()
}

// Spawn upserts the member and starts its worker goroutine. An existing
// member still working cannot be respawned.
func (m *Manager) Spawn(name, role, prompt string) string {
	name = strings.TrimSpace(name)
	role = strings.TrimSpace(role)
	if role == "" {
		role = "teammate"
	}
	if name == "" {
		return "Error: teammate name is required"
	}
	if strings.TrimSpace(prompt) == "" {
		return "Error: prompt is required"
	}

	m.mu.Lock()
	if m.workerRunner == nil {
		m.mu.Unlock()
		return "Error: Team worker runner unavailable"
	}
	member := m.findMemberLocked(name)
	if member != nil {
		switch member.Status {
		case "idle", "shutdown", "error":
		default:
			status := member.Status
			m.mu.Unlock()
			return fmt.Sprintf("Error: '%s' is currently %s", name, status)
		}
		member.Role = role
		member.Status = "working"
	} else {
		m.config.Members = append(m.config.Members, Member{Name: name, Role: role, Status: "working"})
	}
	m.saveConfigLocked()
	runner := m.workerRunner
	m.mu.Unlock()

	m.workers.Add(1)
	go m.runWorker(runner, name, role, prompt)
	return fmt.Sprintf("Spawned '%s' (role: %s)", name, role)
}

func (m *Manager) runWorker(runner WorkerRunner, name, role, prompt string) {
	defer m.workers.Done()
	if err := runWorkerSafe(runner, name, role, prompt); err != nil {
		m.logger.Warn("teammate worker failed", "name", name, "error", err)
		m.SetMemberStatus(name, "error")
		m.bus.Send(Message{Type: "message", From: "system", Content: fmt.Sprintf("%s failed: %v", name, err)}, "lead")
		return
	}

	// A worker that returned without changing its own status goes idle.
	m.mu.Lock()
	defer m.mu.Unlock()
	if member := m.findMemberLocked(name); member != nil && member.Status == "working" {
		member.Status = "idle"
		m.saveConfigLocked()
	}
}

func runWorkerSafe(runner WorkerRunner, name, role, prompt string) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return runner(name, role, prompt)
}

// SetMemberStatus updates one member's status in the config file.
func (m *Manager) SetMemberStatus(name, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member := m.findMemberLocked(name)
	if member == nil {
		return
	}
	member.Status = status
	m.saveConfigLocked()
}

// MemberNames returns the roster names.
func (m *Manager) MemberNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.config.Members))
	for _, member := range m.config.Members {
		if member.Name != "" {
			names = append(names, member.Name)
		}
	}
	return names
}

// ListMembers renders the roster.
func (m *Manager) ListMembers() string {
	m.mu.Lock()
	members := append([]Member(nil), m.config.Members...)
	teamName := m.config.TeamName
	m.mu.Unlock()

	if len(members) == 0 {
		return "No teammates."
	}
	lines := []string{"Team: " + teamName}
	for _, member := range members {
		lines = append(lines, fmt.Sprintf("- %s (%s): %s", member.Name, member.Role, member.Status))
	}
	return strings.Join(lines, "\n")
}

// SendMessage sends one bus message from sender to a named inbox.
func (m *Manager) SendMessage(sender, to, content, msgType string) string {
	if msgType == "" {
		msgType = "message"
	}
	return m.bus.Send(Message{Type: msgType, From: sender, Content: content}, to)
}

// SendFromLead sends one message from the lead.
func (m *Manager) SendFromLead(to, content, msgType string) string {
	return m.SendMessage("lead", to, content, msgType)
}

// BroadcastFromLead sends a broadcast to every member except the lead.
func (m *Manager) BroadcastFromLead(content string) string {
	sent := 0
	for _, name := range m.MemberNames() {
		if name == "lead" {
			continue
		}
		m.bus.Send(Message{Type: "broadcast", From: "lead", Content: content}, name)
		sent++
	}
	return fmt.Sprintf("Broadcast to %d teammate(s)", sent)
}

// ReadInbox drains the named inbox.
func (m *Manager) ReadInbox(name string) []Message {
	return m.bus.Read(name)
}

// ReadInboxText drains the named inbox and renders it as JSON.
func (m *Manager) ReadInboxText(name string) string {
	messages := m.ReadInbox(name)
	if messages == nil {
		messages = []Message{}
	}
	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}

// RequestShutdown records a pending shutdown request and notifies the
// teammate through its inbox.
func (m *Manager) RequestShutdown(teammate string) string {
	name := strings.TrimSpace(teammate)
	if name == "" {
		return "Error: teammate is required"
	}
	requestID := anuris.ShortID()
	m.mu.Lock()
	m.shutdownRequests[requestID] = &shutdownRequest{Target: name, Status: "pending"}
	m.mu.Unlock()

	m.bus.Send(Message{
		Type:      "shutdown_request",
		From:      "lead",
		Content:   "Please shutdown gracefully when safe.",
		RequestID: requestID,
	}, name)
	return fmt.Sprintf("Shutdown request %s sent to %s", requestID, name)
}

// RecordShutdownResponse resolves a shutdown request from a teammate. An
// approval also flips the member to shutdown.
func (m *Manager) RecordShutdownResponse(sender, requestID string, approve bool, reason string) string {
	m.mu.Lock()
	if req, ok := m.shutdownRequests[requestID]; ok {
		if approve {
			req.Status = "approved"
		} else {
			req.Status = "rejected"
		}
	}
	if member := m.findMemberLocked(sender); member != nil && approve {
		member.Status = "shutdown"
		m.saveConfigLocked()
	}
	m.mu.Unlock()

	m.bus.Send(Message{
		Type:      "shutdown_response",
		From:      sender,
		Content:   reason,
		RequestID: requestID,
		Approve:   &approve,
	}, "lead")
	if approve {
		return "Shutdown approved"
	}
	return "Shutdown rejected"
}

// CheckShutdown returns the JSON record for one shutdown request.
func (m *Manager) CheckShutdown(requestID string) string {
	m.mu.Lock()
	req, ok := m.shutdownRequests[requestID]
	var snapshot shutdownRequest
	if ok {
		snapshot = *req
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Sprintf("Error: Unknown request_id '%s'", requestID)
	}
	data, _ := json.MarshalIndent(snapshot, "", "  ")
	return string(data)
}

// ListShutdownRequests renders all shutdown requests.
func (m *Manager) ListShutdownRequests() string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.shutdownRequests))
	for id := range m.shutdownRequests {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		req := m.shutdownRequests[id]
		lines = append(lines, fmt.Sprintf("- %s: %s [%s]", id, req.Target, req.Status))
	}
	m.mu.Unlock()

	if len(lines) == 0 {
		return "No shutdown requests."
	}
	return strings.Join(lines, "\n")
}

// SubmitPlan records a pending plan request from a teammate and forwards it
// to the lead inbox.
func (m *Manager) SubmitPlan(sender, plan string) string {
	planText := strings.TrimSpace(plan)
	if planText == "" {
		return "Error: plan is required"
	}
	requestID := anuris.ShortID()
	m.mu.Lock()
	m.planRequests[requestID] = &planRequest{From: sender, Status: "pending", Plan: planText}
	m.mu.Unlock()

	m.bus.Send(Message{
		Type:      "plan_approval_request",
		From:      sender,
		Content:   planText,
		RequestID: requestID,
		Plan:      planText,
	}, "lead")
	return fmt.Sprintf("Plan submitted (request_id=%s)", requestID)
}

// ReviewPlan resolves a plan request and notifies the submitting teammate.
func (m *Manager) ReviewPlan(requestID string, approve bool, feedback string) string {
	m.mu.Lock()
	req, ok := m.planRequests[requestID]
	if !ok {
		m.mu.Unlock()
		return fmt.Sprintf("Error: Unknown request_id '%s'", requestID)
	}
	if approve {
		req.Status = "approved"
	} else {
		req.Status = "rejected"
	}
	req.Feedback = feedback
	target := req.From
	status := req.Status
	m.mu.Unlock()

	m.bus.Send(Message{
		Type:      "plan_approval_response",
		From:      "lead",
		Content:   feedback,
		RequestID: requestID,
		Approve:   &approve,
		Feedback:  feedback,
	}, target)
	return fmt.Sprintf("Plan %s marked as %s", requestID, status)
}

// ListPlanRequests renders all plan requests.
func (m *Manager) ListPlanRequests() string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.planRequests))
	for id := range m.planRequests {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		req := m.planRequests[id]
		lines = append(lines, fmt.Sprintf("- %s: from=%s [%s]", id, req.From, req.Status))
	}
	m.mu.Unlock()

	if len(lines) == 0 {
		return "No plan requests."
	}
	return strings.Join(lines, "\n")
}

// --- lead tool surface ---

func (m *Manager) Definitions() []anuris.ToolDefinition {
	return []anuris.ToolDefinition{
		{
			Name:        "spawn_teammate",
			Description: "Spawn a persistent teammate worker with a name, role, and initial prompt.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"name":{"type":"string"},"role":{"type":"string","description":"Role name; read-only roles get restricted tools"},"prompt":{"type":"string","description":"Initial task prompt"}},"required":["name","prompt"]}`),
		},
		{
			Name:        "list_teammates",
			Description: "List team members with roles and statuses.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        "send_message",
			Description: "Send a message to a teammate inbox.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"to":{"type":"string"},"content":{"type":"string"},"msg_type":{"type":"string","description":"Message type (default message)"}},"required":["to","content"]}`),
		},
		{
			Name:        "read_inbox",
			Description: "Drain and return an inbox as JSON. Defaults to the lead inbox.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"name":{"type":"string"}}}`),
		},
		{
			Name:        "broadcast",
			Description: "Send a broadcast message to all teammates.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"content":{"type":"string"}},"required":["content"]}`),
		},
		{
			Name:        "shutdown_request",
			Description: "Ask a teammate to shut down gracefully.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"teammate":{"type":"string"}},"required":["teammate"]}`),
		},
		{
			Name:        "shutdown_status",
			Description: "Check one shutdown request by request id.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"request_id":{"type":"string"}},"required":["request_id"]}`),
		},
		{
			Name:        "shutdown_list",
			Description: "List all shutdown requests.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        "plan_review",
			Description: "Approve or reject a submitted teammate plan.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"request_id":{"type":"string"},"approve":{"type":"boolean"},"feedback":{"type":"string"}},"required":["request_id","approve"]}`),
		},
		{
			Name:        "plan_list",
			Description: "List all plan approval requests.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
	}
}

func (m *Manager) Execute(ctx context.Context, name string, args json.RawMessage) (anuris.ToolResult, error) {
	var params struct {
		Name      string `json:"name"`
		Role      string `json:"role"`
		Prompt    string `json:"prompt"`
		To        string `json:"to"`
		Content   string `json:"content"`
		MsgType   string `json:"msg_type"`
		Teammate  string `json:"teammate"`
		RequestID string `json:"request_id"`
		Approve   bool   `json:"approve"`
		Feedback  string `json:"feedback"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return anuris.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}

	var out string
	switch name {
	case "spawn_teammate":
		out = m.Spawn(params.Name, params.Role, params.Prompt)
	case "list_teammates":
		out = m.ListMembers()
	case "send_message":
		out = m.SendFromLead(params.To, params.Content, params.MsgType)
	case "read_inbox":
		target := strings.TrimSpace(params.Name)
		if target == "" {
			target = "lead"
		}
		out = m.ReadInboxText(target)
	case "broadcast":
		out = m.BroadcastFromLead(params.Content)
	case "shutdown_request":
		out = m.RequestShutdown(params.Teammate)
	case "shutdown_status":
		out = m.CheckShutdown(params.RequestID)
	case "shutdown_list":
		out = m.ListShutdownRequests()
	case "plan_review":
		out = m.ReviewPlan(params.RequestID, params.Approve, params.Feedback)
	case "plan_list":
		out = m.ListPlanRequests()
	default:
		return anuris.ToolResult{Error: "unknown team tool: " + name}, nil
	}
	if rest, ok := strings.CutPrefix(out, "Error: "); ok {
		return anuris.ToolResult{Error: rest}, nil
	}
	return anuris.ToolResult{Content: out}, nil
}

// --- config persistence ---

func (m *Manager) loadConfig() config {
	cfg := config{TeamName: "default", Members: []Member{}}
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return cfg
	}
	var loaded config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return cfg
	}
	if loaded.TeamName == "" {
		loaded.TeamName = "default"
	}
	if loaded.Members == nil {
		loaded.Members = []Member{}
	}
	return loaded
}

func (m *Manager) saveConfigLocked() {
	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(m.configPath, data, 0o644); err != nil {
		m.logger.Warn("save team config failed", "error", err)
	}
}

func (m *Manager) findMemberLocked(name string) *Member {
	for i := range m.config.Members {
		if m.config.Members[i].Name == name {
			return &m.config.Members[i]
		}
	}
	return nil
}
