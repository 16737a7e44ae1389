package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"fetchr/agent"
	"fetchr/chatlog"
	"fetchr/content"
	"fetchr/ollama"
	"fetchr/tools"

	"github.com/urfave/cli/v3"
)

const flushTimeout = 10 * time.Second

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "send a message to a chat and run the agent until it stops",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "chat", Usage: "chat id", Required: true},
			&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Usage: "user message, or the answer to a pending question"},
			&cli.StringSliceFlag{Name: "tool", Usage: "tools offered to the model (default: all)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := a.provider()
			if err != nil {
				return err
			}
			ag, err := agent.New(agent.Config{
				ChatID:            cmd.String("chat"),
				SystemPrompt:      a.cfg.Agent.SystemPrompt,
				Tools:             cmd.StringSlice("tool"),
				MaxSteps:          a.cfg.Agent.MaxSteps,
				RollbackOnFailure: a.cfg.Agent.RollbackOnFailure,
			}, a.chats, p, newShopper(os.Stdout),
				agent.WithRegistry(a.registry),
				agent.WithLogger(a.logger))
			if err != nil {
				return err
			}
			if err := ag.Init(ctx); err != nil {
				return err
			}
			defer flush(ag.Log())

			if msg := cmd.String("message"); msg != "" {
				if err := deliver(ag, msg); err != nil {
					return err
				}
			}
			return printEvents(os.Stdout, ag.Run(ctx))
		},
	}
}

// deliver answers a pending blocking question with msg, or appends msg as a
// new user turn when nothing is pending.
func deliver(ag *agent.Agent, msg string) error {
	id, err := ag.Log().PendingToolUseID(tools.MessageUser)
	switch {
	case err == nil:
		return ag.Resolve(id, tools.NewMessageUserResponse(msg))
	case errors.Is(err, chatlog.ErrNotFound):
		ag.Log().Append(content.TextTurn(content.RoleUser, msg))
		return nil
	default:
		return err
	}
}

func printEvents(w io.Writer, events <-chan agent.Event) error {
	var runErr error
	for ev := range events {
		switch ev.Type {
		case agent.EventStatus:
			fmt.Fprintf(w, "… %s\n", ev.Status)
		case agent.EventPendingToolUsage:
			fmt.Fprintln(w, "(waiting for your answer, reply with --message)")
		case agent.EventError:
			fmt.Fprintf(w, "error: %v\n", ev.Err)
			runErr = ev.Err
		case agent.EventComplete:
			if ev.FinalTurn != nil {
				if text := ev.FinalTurn.PlainText(); text != "" {
					fmt.Fprintf(w, "assistant: %s\n", text)
				}
			}
		}
	}
	return runErr
}

func flush(log *chatlog.Log) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := log.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: chat writes did not finish: %v\n", err)
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "print a chat",
		ArgsUsage: "<chat-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print the stored JSON"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id := cmd.Args().First()
			if id == "" {
				return errors.New("chat id is required")
			}
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			log, err := a.chats.GetExisting(ctx, id)
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				data, err := content.EncodeTurns(log.Turns())
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}
			printTurns(os.Stdout, log.Turns())
			return nil
		},
	}
}

func printTurns(w io.Writer, turns []content.Turn) {
	for _, turn := range turns {
		if turn.IsString() {
			fmt.Fprintf(w, "%s: %s\n", turn.Role, turn.Text)
			continue
		}
		for _, b := range turn.Blocks {
			switch blk := b.(type) {
			case *content.Text:
				fmt.Fprintf(w, "%s: %s\n", turn.Role, blk.Text)
			case *content.Image:
				src := blk.URL
				if src == "" {
					src = fmt.Sprintf("%d bytes", len(blk.Data))
				}
				fmt.Fprintf(w, "%s: [image %s] %s\n", turn.Role, src, blk.Caption)
			case *content.ToolUse:
				fmt.Fprintf(w, "%s: -> %s(%s) [%s]\n", turn.Role, blk.Name, blk.Input, blk.ID)
			case *content.ToolResult:
				marker := "<-"
				if blk.IsError {
					marker = "<- error"
				}
				fmt.Fprintf(w, "%s: %s %s [%s]\n", turn.Role, marker, blk.Content, blk.ToolUseID)
			}
		}
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "list stored chats",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			chats, err := a.rows.List(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTURNS\tUPDATED")
			for _, c := range chats {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", c.ID, c.TurnCount, c.UpdatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "search the text of every stored chat",
		ArgsUsage: "<query>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			query := strings.Join(cmd.Args().Slice(), " ")
			if query == "" {
				return errors.New("query is required")
			}
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			chats, err := a.rows.List(ctx)
			if err != nil {
				return err
			}
			ids := make([]string, len(chats))
			for i, c := range chats {
				ids[i] = c.ID
			}
			matches, err := a.chats.Search(ctx, ids, query)
			if err != nil {
				return err
			}
			for _, m := range matches {
				fmt.Printf("%s#%d %s: %s\n", m.ChatID, m.TurnIndex, m.Role, m.Preview)
			}
			return nil
		},
	}
}

func repairCommand() *cli.Command {
	return &cli.Command{
		Name:      "repair",
		Usage:     "normalize stored chats so every tool call has exactly one result",
		ArgsUsage: "<chat-id>...",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ids := cmd.Args().Slice()
			if len(ids) == 0 {
				return errors.New("at least one chat id is required")
			}
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			logs, err := a.chats.LoadMany(ctx, ids)
			if err != nil {
				return err
			}
			for _, log := range logs {
				before := log.Len()
				turns, err := log.Normalize()
				if err != nil {
					return fmt.Errorf("failed to normalize %s: %w", log.ID(), err)
				}
				flush(log)
				fmt.Printf("%s: %d turns -> %d turns\n", log.ID(), before, len(turns))
			}
			return nil
		},
	}
}

func modelsCommand() *cli.Command {
	return &cli.Command{
		Name:  "models",
		Usage: "list models on the configured Ollama server",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			client, err := ollama.NewClient(a.cfg.Ollama.Host, a.cfg.Provider.Model)
			if err != nil {
				return err
			}
			if err := client.Ping(ctx); err != nil {
				return fmt.Errorf("ollama at %s is not reachable: %w", client.BaseURL(), err)
			}
			models, err := client.ListModels(ctx)
			if err != nil {
				return err
			}
			for _, m := range models {
				var notes []string
				if m == client.Model() {
					notes = append(notes, "default")
				}
				if ollama.ModelSupportsToolCalling(m) {
					notes = append(notes, "tools")
				}
				if len(notes) > 0 {
					fmt.Printf("%s (%s)\n", m, strings.Join(notes, ", "))
				} else {
					fmt.Println(m)
				}
			}
			return nil
		},
	}
}
