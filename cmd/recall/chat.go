package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/recall/engine"
	"github.com/becomeliminal/recall/memory"
)

var (
	chatUser        string
	chatNoMemory    bool
	chatSearch      bool
	chatLimit       int
	chatTemperature float64
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat in the terminal",
	Long: `Chat in the terminal with streaming replies.

Commands:
  /memories       list stored memories
  /search <query> search memories
  /export         print the memory export
  /stats          show memory and conversation counts
  /clear          clear the conversation (memories are kept)
  /exit           quit`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		limit := chatLimit
		if limit <= 0 {
			limit = cfg.Chat.ContextLimit
		}
		r := &repl{
			app:    a,
			userID: chatUser,
			in:     cmd.InOrStdin(),
			out:    cmd.OutOrStdout(),
			input: engine.Input{
				UserID:       chatUser,
				UseMemory:    cfg.Chat.UseMemory && !chatNoMemory,
				UseSearch:    chatSearch,
				ContextLimit: limit,
			},
		}
		if cmd.Flags().Changed("temperature") {
			r.input.Temperature = &chatTemperature
		}
		return r.run(ctx)
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatUser, "user", "u", "default_user", "user ID")
	chatCmd.Flags().BoolVar(&chatNoMemory, "no-memory", false, "disable long-term memory")
	chatCmd.Flags().BoolVar(&chatSearch, "search", false, "augment answers with web search")
	chatCmd.Flags().IntVar(&chatLimit, "context-limit", 0, "memories injected per turn (1-10)")
	chatCmd.Flags().Float64Var(&chatTemperature, "temperature", 0.7, "response temperature")
}

type repl struct {
	app    *app
	userID string
	in     io.Reader
	out    io.Writer
	input  engine.Input
}

func (r *repl) run(ctx context.Context) error {
	fmt.Fprintf(r.out, "🧠 recall (user %s). Type /exit to quit.\n", r.userID)
	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for {
		fmt.Fprint(r.out, "\n💭 > ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := r.command(ctx, line); quit {
				return nil
			}
			continue
		}
		r.turn(ctx, line)
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (r *repl) turn(ctx context.Context, message string) {
	input := r.input
	input.Message = message
	input.StreamCallback = func(chunk string, done bool) {
		if done {
			fmt.Fprintln(r.out)
			return
		}
		fmt.Fprint(r.out, chunk)
	}

	out, err := r.app.engine.Run(ctx, &input)
	if err != nil {
		fmt.Fprintln(r.out, out.Text)
		return
	}
	if out.Intent != nil {
		fmt.Fprintf(r.out, "   [%s %.2f | 检索 %t | 存储 %t]\n",
			out.Intent.MessageType, out.Intent.Confidence, out.Intent.RetrieveNeeded, out.Stored)
	}
}

// command handles a slash command and reports whether to quit.
func (r *repl) command(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	mem := r.app.memory

	switch name {
	case "/exit", "/quit":
		return true

	case "/memories":
		records, err := mem.ListAll(ctx, r.userID)
		if err != nil {
			fmt.Fprintln(r.out, "❌", err)
			return false
		}
		printRecords(r.out, records)

	case "/search":
		if arg == "" {
			fmt.Fprintln(r.out, "usage: /search <query>")
			return false
		}
		records, err := mem.Search(ctx, r.userID, arg, 10)
		if err != nil {
			fmt.Fprintln(r.out, "❌", err)
			return false
		}
		fmt.Fprintf(r.out, "✨ 找到 %d 条相关记忆\n", len(records))
		printRecords(r.out, records)

	case "/export":
		data, err := mem.Export(ctx, r.userID)
		if err != nil {
			fmt.Fprintln(r.out, "❌", err)
			return false
		}
		fmt.Fprintln(r.out, string(data))

	case "/stats":
		stats, err := r.app.engine.Stats(ctx, r.userID)
		if err != nil {
			fmt.Fprintln(r.out, "❌", err)
			return false
		}
		fmt.Fprintf(r.out, "memories: %d (user %d, assistant %d)\nconversation messages: %d\n",
			stats.Total, stats.UserTurns, stats.AssistantTurns, stats.Turns)

	case "/clear":
		if err := r.app.engine.Clear(ctx, r.userID); err != nil {
			fmt.Fprintln(r.out, "❌", err)
			return false
		}
		fmt.Fprintln(r.out, "conversation cleared")

	default:
		fmt.Fprintf(r.out, "unknown command %s\n", name)
	}
	return false
}

func printRecords(w io.Writer, records []*memory.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "(no memories)")
		return
	}
	for _, rec := range records {
		line := fmt.Sprintf("%s  [%s] %s", rec.ID, rec.Role, rec.Text)
		if rec.Score != 0 {
			line += fmt.Sprintf("  (%.3f)", rec.Score)
		}
		fmt.Fprintln(w, line)
	}
}
