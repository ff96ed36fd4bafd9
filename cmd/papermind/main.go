// Command papermind is an MCP-based research assistant: the chat subcommand
// runs the interactive chatbot, and the *-server subcommands run the bundled
// tool servers over stdio.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/effective-security/xlog"
	"github.com/papermind-ai/papermind/chatbot"
	"github.com/papermind-ai/papermind/llmfactory"
	"github.com/papermind-ai/papermind/mcp"
	"github.com/papermind-ai/papermind/mcp/transport/stdiotransport"
	"github.com/papermind-ai/papermind/tools/research"
	"github.com/papermind-ai/papermind/tools/websearch"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile  string
	paperDir string
	debug    bool
)

var rootCmd = &cobra.Command{
	Use:     "papermind",
	Short:   "MCP research assistant",
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Logs go to stderr; stdout may carry the MCP protocol.
		xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
		if debug {
			xlog.SetGlobalLogLevel(xlog.DEBUG)
		} else {
			xlog.SetGlobalLogLevel(xlog.ERROR)
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run the interactive chatbot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		cfg, err := chatbot.LoadConfig(cfgFile)
		if err != nil {
			return err
		}

		model, err := llmfactory.New(cfg.LLM).DefaultModel()
		if err != nil {
			return err
		}

		manager := chatbot.NewManager(cfg.Servers, chatbot.WithClientInfo("papermind", version))
		defer func() { _ = manager.Shutdown() }()

		if err := manager.StartAll(ctx); err != nil {
			return err
		}

		engine := chatbot.NewEngine(model, manager.Registry(), cfg.Chat)
		chat := chatbot.NewChat(engine, manager, os.Stdin, os.Stdout)
		return chat.Run(ctx)
	},
}

var researchServerCmd = &cobra.Command{
	Use:   "research-server",
	Short: "Run the arXiv research tool server over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := research.NewStore(paperDir)

		searchTool, err := research.NewSearchTool(store)
		if err != nil {
			return err
		}
		extractTool, err := research.NewExtractTool(store)
		if err != nil {
			return err
		}

		tr := stdiotransport.NewServer()
		server := mcp.NewServer(tr, mcp.WithName("research"), mcp.WithVersion(version))

		if err := searchTool.RegisterMCP(server); err != nil {
			return err
		}
		if err := extractTool.RegisterMCP(server); err != nil {
			return err
		}
		if err := research.RegisterResources(server, store); err != nil {
			return err
		}
		if err := research.RegisterPrompts(server); err != nil {
			return err
		}

		if err := server.Serve(); err != nil {
			return err
		}
		<-tr.Done()
		return nil
	},
}

var websearchServerCmd = &cobra.Command{
	Use:   "websearch-server",
	Short: "Run the web search tool server over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		searchTool, err := websearch.New()
		if err != nil {
			return err
		}

		tr := stdiotransport.NewServer()
		server := mcp.NewServer(tr, mcp.WithName("websearch"), mcp.WithVersion(version))

		if err := searchTool.RegisterMCP(server); err != nil {
			return err
		}

		if err := server.Serve(); err != nil {
			return err
		}
		<-tr.Done()
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	chatCmd.Flags().StringVar(&cfgFile, "cfg", "papermind.yaml", "path to the chatbot config")
	researchServerCmd.Flags().StringVar(&paperDir, "papers", "papers", "directory for saved paper metadata")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(researchServerCmd)
	rootCmd.AddCommand(websearchServerCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
