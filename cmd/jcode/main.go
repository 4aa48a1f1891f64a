// Command jcode is a terminal-first coding agent.
//
// Usage:
//
//	ANTHROPIC_API_KEY=sk-... jcode [flags]
//	GEMINI_API_KEY=gk-...   jcode [flags]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jcodehq/jcode"
	"github.com/jcodehq/jcode/builtin"
	bt "github.com/jcodehq/jcode/bubbletea"
	pipejson "github.com/jcodehq/jcode/json"
	"github.com/spf13/cobra"
)

const defaultPromptPath = ".jcode/prompt.md"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a run error to the process exit code: 130 when the run
// was interrupted (context.Canceled), 1 for every other error. Usage,
// credential, transport and provider failures are not given distinct codes.
func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

func newRootCmd() *cobra.Command {
	var (
		model        string
		sessionPath  string
		promptPath   string
		providerFlag string
		apiKey       string
		workDirFlag  string
	)

	cmd := &cobra.Command{
		Use:   "jcode",
		Short: "Terminal-first coding agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), runFlags{
				model:        model,
				sessionPath:  sessionPath,
				promptPath:   promptPath,
				providerFlag: providerFlag,
				apiKey:       apiKey,
				workDir:      workDirFlag,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&model, "model", "", "Model ID (provider-specific)")
	flags.StringVar(&sessionPath, "resume", "", "Path to session log to resume")
	flags.StringVar(&promptPath, "system-prompt", defaultPromptPath, "Path to system prompt file")
	flags.StringVar(&providerFlag, "provider", "", "Provider: anthropic, gemini (auto-detected from env vars if omitted)")
	flags.StringVar(&apiKey, "api-key", "", "API key (overrides provider's env var)")
	flags.StringVarP(&workDirFlag, "directory", "C", "", "Working directory (default: current directory)")

	cmd.AddCommand(newServeCmd())
	return cmd
}

type runFlags struct {
	model        string
	sessionPath  string
	promptPath   string
	providerFlag string
	apiKey       string
	workDir      string
}

func run(ctx context.Context, f runFlags) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	provider, err := resolveProvider(ctx, f.providerFlag, f.apiKey,
		os.Getenv("ANTHROPIC_API_KEY"), os.Getenv("GEMINI_API_KEY"))
	if err != nil {
		return err
	}

	dir := f.workDir
	if dir == "" {
		dir, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("getwd: %w", err)
		}
	}

	session, err := loadOrCreateSession(f.sessionPath, f.promptPath, dir)
	if err != nil {
		return err
	}

	reg := jcode.NewRegistry()
	builtin.RegisterAll(reg)
	toolDefs := reg.List()

	loop := jcode.NewLoop(provider, reg)

	modelID := f.model
	agentFn := func(ctx context.Context, s *jcode.Session, onEvent func(jcode.Event)) error {
		release, err := s.BeginTurn()
		if err != nil {
			return err
		}
		defer release()

		opts := []jcode.RunOption{jcode.WithEventHandler(onEvent)}
		if modelID != "" {
			opts = append(opts, jcode.WithModel(modelID))
		}
		return loop.Run(ctx, s, toolDefs, opts...)
	}

	theme := jcode.DefaultTheme()
	config := bt.Config{
		WorkDir:   displayWorkDir(dir),
		GitBranch: gitBranch(dir),
		ModelName: modelID,
	}
	tuiModel := bt.New(agentFn, session, theme, config)

	program := tea.NewProgram(tuiModel, tea.WithContext(ctx), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("TUI: %w", err)
	}

	savePath := f.sessionPath
	if savePath == "" {
		savePath = defaultSessionLogPath(session.ID)
	}
	if err := pipejson.SaveLog(savePath, session); err != nil {
		return fmt.Errorf("save session log: %w", err)
	}
	if err := pipejson.SaveMeta(metaPathFor(savePath), session); err != nil {
		return fmt.Errorf("save session meta: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Session saved to %s\n", savePath)

	return nil
}

func loadOrCreateSession(logPath, promptPath, workDir string) (*jcode.Session, error) {
	if logPath != "" {
		id, messages, err := pipejson.LoadLog(logPath)
		if err != nil {
			return nil, fmt.Errorf("load session log: %w", err)
		}
		session := jcode.NewSession(id, workDir)
		session.SetMessages(messages)
		if err := pipejson.LoadMeta(metaPathFor(logPath), session); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load session meta: %w", err)
		}
		return session, nil
	}

	systemPrompt := "You are a helpful coding assistant."
	data, err := os.ReadFile(promptPath)
	switch {
	case err == nil:
		systemPrompt = string(data)
	case errors.Is(err, os.ErrNotExist) && promptPath == defaultPromptPath:
		// Default prompt file doesn't exist; use built-in default.
	default:
		return nil, fmt.Errorf("read system prompt: %w", err)
	}

	session := jcode.NewSession(fmt.Sprintf("%d", time.Now().UnixNano()), workDir)
	session.SystemPrompt = systemPrompt
	return session, nil
}

// metaPathFor derives the meta.json sibling of a log.json path.
func metaPathFor(logPath string) string {
	return filepath.Join(filepath.Dir(logPath), "meta.json")
}

func defaultSessionLogPath(id string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".jcode", "sessions", id, "log.json")
}

func displayWorkDir(dir string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return dir
	}
	if rel, ok := strings.CutPrefix(dir, home); ok {
		return "~" + rel
	}
	return dir
}

func gitBranch(dir string) string {
	// Walk up from dir looking for a .git entry to avoid spawning git
	// outside repositories (saves ~50-100ms startup latency).
	found := false
	cur := dir
	for {
		if _, err := os.Stat(filepath.Join(cur, ".git")); err == nil {
			found = true
			break
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}
	if !found {
		return ""
	}
	out, err := exec.Command("git", "-C", dir, "rev-parse", "--abbrev-ref", "HEAD").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
