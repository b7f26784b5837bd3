// Command characterai talks to character.ai from the terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"ai-agent-character-demo/characterai-client/pkg/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// run builds the app from the environment, executes one command and tears
// the app down again.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var a *app
	root := newRootCmd(func() *app { return a })
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		cfg := config.Load()
		if baseURL, _ := cmd.Flags().GetString("base-url"); baseURL != "" {
			cfg.Service.BaseURL = baseURL
		}
		var err error
		a, err = newApp(cfg, stderr)
		return err
	}

	err := root.ExecuteContext(ctx)
	if a != nil {
		a.close(context.Background())
	}
	return err
}

func newRootCmd(current func() *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "characterai",
		Short:         "Chat with character.ai characters",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("base-url", "", "service root (default CHARACTERAI_BASE_URL or "+config.DefaultBaseURL+")")
	root.PersistentFlags().Bool("json", false, "print results as JSON")

	root.AddCommand(
		newSendCmd(current),
		newHistoryCmd(current),
		newCategoriesCmd(current),
		newFeaturedCmd(current),
		newCharacterCmd(current),
		newHealthCmd(current),
	)
	return root
}
