package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wolfman30/synquot/internal/app/bootstrap"
	appconfig "github.com/wolfman30/synquot/internal/config"
	"github.com/wolfman30/synquot/internal/conversation"
	"github.com/wolfman30/synquot/internal/llm"
	"github.com/wolfman30/synquot/internal/quotation"
)

func newChatCmd(root *rootOptions) *cobra.Command {
	var (
		offline  bool
		showJSON bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive quotation chat",
		Long: `Reads one message per line and prints the assistant reply with the running
total. Type "exit" or "quit" to stop. With --offline no model is called and
every message goes through the rule-based engine.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := appconfig.Load()
			if err != nil {
				return err
			}
			logger := root.logger(cmd)
			engine, err := bootstrap.BuildEngine(cmd.Context(), cfg, nil, nil, logger, offline)
			if err != nil {
				return err
			}
			defer engine.Close()
			return runChat(cmd, engine.Engine, conversation.NewMemorySessionStore(), showJSON)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "use only the rule-based engine")
	cmd.Flags().BoolVar(&showJSON, "json", false, "print the full quotation after each turn")
	return cmd
}

func runChat(cmd *cobra.Command, engine *conversation.Engine, sessions conversation.SessionRepository, showJSON bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	id := uuid.NewString()

	fmt.Fprintln(out, "SynQuot quotation chat. Type 'exit' to quit.")
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			return nil
		}

		session, err := sessions.Get(ctx, id)
		if err != nil {
			return err
		}
		doc := session.Document
		res := engine.Process(ctx, conversation.Request{
			Message:  line,
			Document: &doc,
			History:  session.History,
		})
		session.Document = res.Document
		session.History = append(session.History,
			llm.Message{Role: "user", Content: line},
			llm.Message{Role: "assistant", Content: res.Reply},
		)
		if err := sessions.Save(ctx, session); err != nil {
			return err
		}

		fmt.Fprintln(out, res.Reply)
		fmt.Fprintf(out, "[%s via %s] %d service(s), grand total %s\n",
			res.Intent, res.Source, len(res.Document.Services), quotation.FormatMoney(res.Document.GrandTotal))
		if showJSON {
			if err := printJSON(out, res.Document); err != nil {
				return err
			}
		}
	}
}
