package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"ai-agent-character-demo/characterai-client/characterai"

	"github.com/spf13/cobra"
)

func newSendCmd(current func() *app) *cobra.Command {
	var message, character string
	var all bool

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message and print the character's reply",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(message) == "" {
				return errors.New("--message is required")
			}
			a := current()
			chat, err := a.chat(cmd.Context(), character)
			if err != nil {
				return err
			}
			events, err := chat.SendAndAwaitResponse(cmd.Context(), message)
			if err != nil {
				return err
			}

			if all {
				return printResult(cmd, events, func(w io.Writer) {
					for _, ev := range events {
						fmt.Fprintf(w, "%s\n", ev.Text())
					}
				})
			}
			final, ok := characterai.FinalReply(events)
			if !ok {
				return errors.New("the service returned no reply")
			}
			return printResult(cmd, final, func(w io.Writer) {
				if name := final.CharacterName(); name != "" {
					fmt.Fprintf(w, "%s: ", name)
				}
				fmt.Fprintln(w, final.Text())
			})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "text to send")
	cmd.Flags().StringVarP(&character, "character", "c", "", "character external id (default CHARACTERAI_CHARID)")
	cmd.Flags().BoolVar(&all, "all", false, "print every reply record, not just the final one")
	return cmd
}

func newHistoryCmd(current func() *app) *cobra.Command {
	var character string
	var page int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the messages of the current chat",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			chat, err := a.chat(cmd.Context(), character)
			if err != nil {
				return err
			}
			var history *characterai.MessageHistory
			if page > 0 {
				history, err = chat.FetchHistoryPage(cmd.Context(), page)
			} else {
				history, err = chat.FetchHistory(cmd.Context())
			}
			if err != nil {
				return err
			}
			return printResult(cmd, history, func(w io.Writer) {
				for _, msg := range history.Messages {
					fmt.Fprintf(w, "%s: %s\n", msg.SrcName, msg.Text)
				}
				if history.HasMore {
					fmt.Fprintf(w, "(more: --page %d)\n", history.NextPage)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&character, "character", "c", "", "character external id (default CHARACTERAI_CHARID)")
	cmd.Flags().IntVar(&page, "page", 0, "history page to fetch")
	return cmd
}

func newCategoriesCmd(current func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List public character categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			categories, err := current().client.FetchCategories(cmd.Context())
			if err != nil {
				return err
			}
			return printResult(cmd, categories, func(w io.Writer) {
				for _, c := range categories {
					if c.Description == "" {
						fmt.Fprintln(w, c.Name)
						continue
					}
					fmt.Fprintf(w, "%s - %s\n", c.Name, c.Description)
				}
			})
		},
	}
}

func newFeaturedCmd(current func() *app) *cobra.Command {
	var curated bool
	var byCategory bool

	cmd := &cobra.Command{
		Use:   "featured",
		Short: "List featured characters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			if err := a.authenticate(cmd.Context()); err != nil {
				return err
			}

			if byCategory || curated {
				groups, err := a.client.FetchCharactersByCategory(cmd.Context(), curated)
				if err != nil {
					return err
				}
				return printResult(cmd, groups, func(w io.Writer) {
					names := make([]string, 0, len(groups))
					for name := range groups {
						names = append(names, name)
					}
					sort.Strings(names)
					for _, name := range names {
						fmt.Fprintf(w, "%s:\n", name)
						for _, ch := range groups[name] {
							fmt.Fprintf(w, "  %s (%s)\n", ch.ParticipantName, ch.ExternalID)
						}
					}
				})
			}

			featured, err := a.client.FetchFeatured(cmd.Context())
			if err != nil {
				return err
			}
			return printResult(cmd, featured, func(w io.Writer) {
				for _, group := range featured {
					fmt.Fprintf(w, "%s: %s\n", group.Name, strings.Join(group.Characters, ", "))
				}
			})
		},
	}
	cmd.Flags().BoolVar(&byCategory, "by-category", false, "group characters by category")
	cmd.Flags().BoolVar(&curated, "curated", false, "group characters by curated category")
	return cmd
}

func newCharacterCmd(current func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "character <external-id>",
		Short: "Describe one character",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := current()
			if err := a.authenticate(cmd.Context()); err != nil {
				return err
			}
			info, err := a.client.FetchCharacterInfo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printResult(cmd, info, func(w io.Writer) {
				fmt.Fprintf(w, "%s (%s)\n", info.Name, info.ExternalID)
				if info.Title != "" {
					fmt.Fprintln(w, info.Title)
				}
				if info.Greeting != "" {
					fmt.Fprintf(w, "> %s\n", info.Greeting)
				}
			})
		},
	}
}

func newHealthCmd(current func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the service is reachable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := current()
			if err := a.authenticate(cmd.Context()); err != nil {
				a.log.Warn("Continuing without a session", "error", err.Error())
			}
			a.checker.RunChecks(cmd.Context())
			status := a.checker.GetStatus()

			if err := printResult(cmd, status, func(w io.Writer) {
				names := make([]string, 0, len(status))
				for name := range status {
					names = append(names, name)
				}
				sort.Strings(names)
				for _, name := range names {
					c := status[name]
					fmt.Fprintf(w, "%-18s %-9s %s\n", name, c.Status, c.Description)
				}
			}); err != nil {
				return err
			}
			if !a.checker.IsSystemHealthy() {
				return errors.New("service is unhealthy")
			}
			return nil
		},
	}
}

// printResult writes v as JSON when --json is set, or calls text otherwise
func printResult(cmd *cobra.Command, v any, text func(io.Writer)) error {
	w := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
