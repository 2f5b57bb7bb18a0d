package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/agentgate/agentgate/internal/agent"
	"github.com/agentgate/agentgate/internal/approval"
	"github.com/agentgate/agentgate/internal/config"
	"github.com/agentgate/agentgate/internal/dispatch"
	"github.com/agentgate/agentgate/internal/event"
	"github.com/agentgate/agentgate/internal/history"
	"github.com/agentgate/agentgate/internal/logging"
	"github.com/agentgate/agentgate/internal/patch"
	"github.com/agentgate/agentgate/internal/permission"
	"github.com/agentgate/agentgate/internal/server"
	"github.com/agentgate/agentgate/internal/session"
	"github.com/agentgate/agentgate/internal/storage"
)

var (
	runDir         string
	runHTTPAddr    string
	runAutoApprove bool
	runMessage     string
)

var runCmd = &cobra.Command{
	Use:   "run [flags] -- <agent command>",
	Short: "Start a supervised agent session",
	Long: `Start the agent backend as a child process and supervise it. Bus
events stream to stdout as JSON lines; further user messages are read from
stdin, one per line.

The agent command comes from the arguments after --, or from the
agentCommand config key when omitted.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runDir, "directory", "", "Working directory")
	runCmd.Flags().StringVar(&runHTTPAddr, "http", "", "HTTP listen address (overrides config)")
	runCmd.Flags().BoolVar(&runAutoApprove, "auto-approve", false, "Approve every permission request")
	runCmd.Flags().StringVarP(&runMessage, "message", "m", "", "First user message to send")
}

func runRun(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(runDir)
	if err != nil {
		return err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if runAutoApprove {
		cfg.AutoApprove = true
	}
	if runHTTPAddr != "" {
		cfg.HTTPAddr = runHTTPAddr
	}
	if !cmd.Flags().Changed("log-level") && cfg.LogLevel != "" {
		logging.Init(logging.Config{Level: logging.ParseLevel(cfg.LogLevel), Pretty: pretty})
	}

	agentCommand := args
	if len(agentCommand) == 0 {
		agentCommand = cfg.AgentCommand
	}
	if len(agentCommand) == 0 {
		return fmt.Errorf("no agent command: pass it after -- or set agentCommand in config")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	transport, err := agent.NewStdioTransport(ctx, agentCommand, cfg.AgentEnv)
	if err != nil {
		return fmt.Errorf("starting agent process: %w", err)
	}
	client := agent.NewClient(transport)

	store := storage.New(cfg.DataDir)
	hist := history.NewStore(store)
	dispatcher := dispatch.New(hist)
	approvals := approval.NewStore()
	conversationID := ulid.Make().String()

	engine := permission.NewEngine(permission.Options{
		Store:          approvals,
		Acker:          client,
		Applier:        patch.NewApplier(workDir),
		Dispatcher:     dispatcher,
		ConversationID: conversationID,
		AutoApprove:    cfg.AutoApprove,
	})

	ctrl := session.NewController(session.Options{
		Client:         client,
		Engine:         engine,
		Store:          approvals,
		Dispatcher:     dispatcher,
		ConversationID: conversationID,
		Identity:       agent.Identity{Name: "agentgate", Version: Version},
		ContextBlocks:  cfg.ContextBlocks,
	})

	// Stream every bus event to stdout as a JSON line
	enc := json.NewEncoder(os.Stdout)
	unsub := event.SubscribeAll(func(e event.Event) {
		_ = enc.Encode(map[string]any{"type": e.Type, "properties": e.Data})
	})
	defer unsub()

	if err := ctrl.Bootstrap(ctx); err != nil {
		ctrl.Teardown(ctx)
		return err
	}
	go ctrl.Run(ctx)

	var srv *server.Server
	if cfg.HTTPAddr != "" {
		serverConfig := server.DefaultConfig()
		serverConfig.Addr = cfg.HTTPAddr
		srv = server.New(serverConfig, ctrl, engine, hist, conversationID)
		go func() {
			logging.Info().Str("addr", cfg.HTTPAddr).Msg("http surface listening")
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				logging.Error().Err(err).Msg("http server stopped")
				cancel()
			}
		}()
	}

	if runMessage != "" {
		if err := ctrl.Send(ctx, runMessage); err != nil {
			logging.Error().Err(err).Msg("failed to send first message")
		}
	}

	// Read further user messages from stdin
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			text := scanner.Text()
			if text == "" {
				continue
			}
			if err := ctrl.Send(ctx, text); err != nil {
				logging.Error().Err(err).Msg("failed to send message")
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logging.Info().Msg("shutting down")
	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	ctrl.Teardown(context.Background())
	return nil
}
