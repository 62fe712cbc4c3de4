package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	yamlv3 "gopkg.in/yaml.v3"

	"paperqa/internal/config"
	"paperqa/internal/metrics"
	"paperqa/internal/server"
	"paperqa/internal/tui"
	"paperqa/internal/vectorstore"
)

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	root := &cobra.Command{
		Use:           "paperqa",
		Short:         "Question answering over research papers, a dictionary and a calculator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to YAML config (default ./config.yaml or ~/.config/paperqa/config.yaml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	root.AddCommand(
		newAskCmd(&flags),
		newChatCmd(&flags),
		newTUICmd(&flags),
		newServeCmd(&flags),
		newIndexCmd(&flags),
	)
	return root
}

func (f *rootFlags) open(logFile string) (*app, error) {
	return newApp(appOptions{configPath: f.configPath, logLevel: f.logLevel, logFile: logFile})
}

func newAskCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <query...>",
		Short: "Answer a single query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := flags.open("")
			if err != nil {
				return err
			}
			defer a.close()
			asst, err := a.assistant(nil)
			if err != nil {
				return err
			}
			res := asst.Ask(cmd.Context(), strings.Join(args, " "))
			fmt.Fprintln(cmd.OutOrStdout(), res.Render())
			return nil
		},
	}
}

func newChatCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Ask questions in a console loop; type exit to quit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := flags.open("")
			if err != nil {
				return err
			}
			defer a.close()
			asst, err := a.assistant(nil)
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), asst)
		},
	}
}

func newTUICmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Interactive terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := flags.open("paperqa.log")
			if err != nil {
				return err
			}
			defer a.close()
			asst, err := a.assistant(nil)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			m := tui.New(ctx, asst, a.summary(ctx))
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		},
	}
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the assistant over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := flags.open("")
			if err != nil {
				return err
			}
			defer a.close()
			m := metrics.New()
			asst, err := a.assistant(m)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			ctx := cmd.Context()
			if _, err := a.index.Get(ctx); err != nil {
				a.log.Warn("index not ready at startup", zap.Error(err))
			}
			srv := server.New(server.NewHandler(asst, a.index, a.log), m.Handler())
			go func() {
				<-ctx.Done()
				_ = srv.Shutdown()
			}()
			return server.Listen(srv, addr, a.log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	return cmd
}

func newIndexCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the persisted vector index",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "build",
		Short: "Rebuild the index from the documents directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := flags.open("")
			if err != nil {
				return err
			}
			defer a.close()
			idx, err := a.index.Rebuild(cmd.Context())
			if err != nil {
				return err
			}
			return printManifest(cmd.OutOrStdout(), idx.Manifest())
		},
	}, &cobra.Command{
		Use:   "info",
		Short: "Print the manifest of the persisted index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags.configPath)
			if err != nil {
				return err
			}
			m, err := vectorstore.ReadManifest(cfg.Index.Path)
			if err != nil {
				return err
			}
			return printManifest(cmd.OutOrStdout(), m)
		},
	})
	return cmd
}

func loadConfig(path string) (*config.AppConfig, error) {
	if path == "" {
		cfg, _, err := config.LoadDefault()
		return cfg, err
	}
	return config.Load(path)
}

// printManifest writes m as YAML without the embedder state blob.
func printManifest(w io.Writer, m vectorstore.Manifest) error {
	m.EmbedderState = ""
	data, err := yamlv3.Marshal(m)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
