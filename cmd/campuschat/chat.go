package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vcetai/campuschat/internal/backend"
	"github.com/vcetai/campuschat/internal/bootstrap"
	"github.com/vcetai/campuschat/internal/chat"
	"github.com/vcetai/campuschat/internal/history"
	"github.com/vcetai/campuschat/internal/store"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session with the campus assistant.

Waits for the backend to finish initializing, then reads questions from
stdin. Type "quit", "exit", or "q" to leave; "/reset" clears a local
rate-limit block; "/credential <key>" saves an API key; "/stats" shows
session state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat()
	},
}

func runChat() error {
	sess, err := newSession()
	if err != nil {
		return err
	}
	defer sess.close()

	hist, err := history.Open(sess.cfg.Storage.DataDir)
	if err != nil {
		printWarning("chat history unavailable: %v", err)
		hist = nil
	} else {
		defer hist.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	greetReturningUser(sess.kv, hist)
	sess.kv.SetRaw(store.KeyLastVisit, time.Now().UTC().Format(time.RFC3339))

	seq := bootstrap.New(sess.client)
	if err := seq.Run(ctx, renderProgress); err != nil {
		return fmt.Errorf("backend startup: %w", err)
	}

	controller := chat.NewController(sess.client,
		chat.WithBlockedSignal(func() {
			printWarning("Too many failed requests; pausing queries. Use /reset to try again.")
		}),
	)

	fmt.Println()
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(colorize(colorBold, "you> "))
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "quit", "exit", "q":
			return nil
		case "/reset":
			controller.Reset()
			printSuccess("Rate limit state cleared")
			continue
		case "/stats":
			printSessionState(controller)
			continue
		}

		// Saving a credential also lifts a local block: the user may have
		// been failing on a bad key.
		if key, ok := strings.CutPrefix(line, "/credential "); ok {
			key = strings.TrimSpace(key)
			if key == "" {
				printError("usage: /credential <key>")
				continue
			}
			if !sess.kv.SetRaw(store.KeyCredential, key) {
				printError("could not save credential")
				continue
			}
			controller.Reset()
			printSuccess("Credential saved")
			continue
		}

		appendTranscript(hist, history.SenderUser, line, false, false)

		result, err := controller.SendQuery(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			msg := friendlyFailure(err)
			printError("%s", msg)
			appendTranscript(hist, history.SenderBot, msg, false, true)
			continue
		}

		printBot(result.ResponseText, replyMeta(result, controller.State()))
		appendTranscript(hist, history.SenderBot, result.ResponseText, result.Cached, false)
	}
}

// greetReturningUser prints a short banner, noting the last visit and the
// size of the stored transcript when available.
func greetReturningUser(kv store.KV, hist *history.Store) {
	fmt.Println(colorize(colorBold, "VCET AI Assistant"))

	if last := kv.GetRaw(store.KeyLastVisit, ""); last != "" {
		if t, err := time.Parse(time.RFC3339, last); err == nil {
			printStatus("Last visit", "%s", t.Local().Format("2 Jan 2006 15:04"))
		}
	}
	if hist != nil {
		if n, err := hist.Count(); err == nil && n > 0 {
			printStatus("History", "%d stored messages (campuschat history show)", n)
		}
	}
}

func appendTranscript(hist *history.Store, sender, content string, cached, isError bool) {
	if hist == nil {
		return
	}
	if _, err := hist.Append(history.Entry{
		Content: content,
		Sender:  sender,
		Cached:  cached,
		IsError: isError,
	}); err != nil {
		printWarning("could not save message: %v", err)
	}
}

func replyMeta(result chat.QueryResult, state chat.RateLimitState) string {
	var parts []string
	if result.Cached {
		parts = append(parts, "cached")
	} else if result.ElapsedSeconds > 0 {
		parts = append(parts, fmt.Sprintf("%.2fs", result.ElapsedSeconds))
	}
	if result.ModelID != "" {
		parts = append(parts, result.ModelID)
	}
	if state.RemainingQuota >= 0 {
		parts = append(parts, fmt.Sprintf("%d requests left", state.RemainingQuota))
	}
	return strings.Join(parts, " · ")
}

func printSessionState(c *chat.Controller) {
	state := c.State()
	if state.Blocked {
		printStatus("Status", "blocked (use /reset)")
	} else {
		printStatus("Status", "ok")
	}
	printStatus("Consecutive failures", "%d", state.ConsecutiveFailures)
	if state.RemainingQuota >= 0 {
		printStatus("Remaining requests", "%d", state.RemainingQuota)
	} else {
		printStatus("Remaining requests", "unknown")
	}
}

// friendlyFailure maps a classified backend error to a message suitable for
// the transcript.
func friendlyFailure(err error) string {
	f := backend.AsFailure(err)
	if f == nil {
		return fmt.Sprintf("Something went wrong: %v", err)
	}
	switch f.Kind {
	case backend.KindValidation:
		return f.Message
	case backend.KindTimeout:
		return "The backend took too long to respond. Please try again."
	case backend.KindNetwork:
		return "Could not reach the backend. Is the server running?"
	case backend.KindUnauthorized:
		return "Your API key was rejected. Update it with: campuschat credential set <key>"
	case backend.KindRateLimited:
		return "Rate limit exceeded. Please wait a minute before asking again."
	default:
		return "The backend reported an error. Please try again."
	}
}
