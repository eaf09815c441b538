package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/runlace/core/internal/agent"
	"github.com/runlace/core/internal/config"
	"github.com/runlace/core/internal/db"
	"github.com/runlace/core/internal/logging"
	"github.com/runlace/core/internal/permission"
	"github.com/runlace/core/internal/provider"
	"github.com/runlace/core/internal/session"
	"github.com/runlace/core/internal/storage"
	"github.com/runlace/core/internal/task"
	"github.com/runlace/core/internal/thread"
	"github.com/runlace/core/internal/tool"
	"github.com/runlace/core/pkg/types"
)

var (
	runPrompt    string
	runStdin     bool
	runDirectory string
	runPersona   string
	runProject   string
	runQuiet     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run a single prompt against an agent in-process and print its reply",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runPrompt, "prompt", "p", "", "prompt text (reads stdin if omitted and --stdin is set)")
	runCmd.Flags().BoolVar(&runStdin, "stdin", false, "read the prompt from stdin")
	runCmd.Flags().StringVarP(&runDirectory, "directory", "d", "", "working directory (defaults to cwd)")
	runCmd.Flags().StringVarP(&runPersona, "agent", "a", "", "persona to run as (defaults to the registry's primary agent)")
	runCmd.Flags().StringVar(&runProject, "project", "default", "project id the session belongs to")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "print only the assistant's final reply")
}

func runRun(cmd *cobra.Command, args []string) error {
	prompt := runPrompt
	if prompt == "" {
		if !runStdin {
			return fmt.Errorf("run: provide a prompt with --prompt or --stdin")
		}
		data, err := io.ReadAll(bufio.NewReader(os.Stdin))
		if err != nil {
			return fmt.Errorf("run: read stdin: %w", err)
		}
		prompt = strings.TrimSpace(string(data))
	}
	if prompt == "" {
		return fmt.Errorf("run: empty prompt")
	}

	workDir := runDirectory
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return err
		}
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if flagModel != "" {
		appConfig.Model = flagModel
	}

	store := storage.New(paths.StoragePath())

	ctx := context.Background()
	providerReg, err := provider.InitializeProviders(ctx, appConfig)
	if err != nil {
		logging.Warn().Err(err).Msg("failed to initialize some providers")
	}

	toolReg := tool.DefaultRegistry(workDir, store)

	conn, err := db.Open(paths.Data)
	if err != nil {
		return err
	}
	defer conn.Close()

	threadStore := thread.New(conn)
	taskStore := task.New(conn)
	toolReg.RegisterTaskManagementTools(taskStore)

	personas := agent.NewRegistry()

	mgr := session.NewManager(threadStore, taskStore, providerReg, toolReg, permission.NewChecker(), personas, workDir)

	root, err := mgr.CreateSession(ctx, runProject, promptTitle(prompt), runPersona)
	if err != nil {
		return fmt.Errorf("run: create session: %w", err)
	}

	if !runQuiet {
		logging.Info().Str("sessionID", string(root.ID)).Str("agent", root.AgentName).Msg("session started")
	}

	if err := mgr.SendMessage(ctx, root.ID, prompt); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	reply, err := finalReply(ctx, threadStore, root.ThreadID)
	if err != nil {
		return fmt.Errorf("run: read reply: %w", err)
	}
	fmt.Println(reply)
	return nil
}

// promptTitle derives a short session title from a prompt's first line.
func promptTitle(prompt string) string {
	line := strings.SplitN(prompt, "\n", 2)[0]
	if len(line) > 60 {
		line = line[:60]
	}
	return line
}

// finalReply replays a thread's event log and concatenates the text deltas
// emitted after the most recent user_message event, reconstructing the
// assistant's final reply without depending on session.Manager internals.
func finalReply(ctx context.Context, threads *thread.Store, threadID types.ThreadID) (string, error) {
	events, err := threads.Events(ctx, threadID, 0)
	if err != nil {
		return "", err
	}

	lastUser := -1
	for i, ev := range events {
		if ev.Type == types.EventUserMessage {
			lastUser = i
		}
	}

	var b strings.Builder
	for _, ev := range events[lastUser+1:] {
		if ev.Type != types.EventTextDelta {
			continue
		}
		var delta types.TextDeltaData
		if err := json.Unmarshal(ev.Data, &delta); err != nil {
			continue
		}
		b.WriteString(delta.Delta)
	}
	return b.String(), nil
}
