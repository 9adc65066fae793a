package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vcetai/campuschat/internal/config"
	"github.com/vcetai/campuschat/internal/history"
	"github.com/vcetai/campuschat/internal/store"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the campus assistant a single question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		sess, err := newSession()
		if err != nil {
			return err
		}
		defer sess.close()

		resp, err := sess.client.Query(cmd.Context(), query)
		if err != nil {
			return fmt.Errorf("%s", friendlyFailure(err))
		}

		meta := ""
		if resp.Cached {
			meta = "cached"
		} else if resp.ResponseTime > 0 {
			meta = fmt.Sprintf("%.2fs", resp.ResponseTime)
		}
		if resp.Model != "" {
			meta = strings.TrimPrefix(meta+" · "+resp.Model, " · ")
		}
		printBot(resp.Response, meta)
		return nil
	},
}

// --- suggest ---

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Show suggested questions",
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")

		sess, err := newSession()
		if err != nil {
			return err
		}
		defer sess.close()

		suggestions, err := sess.client.Suggestions(cmd.Context(), count)
		if err != nil {
			return fmt.Errorf("%s", friendlyFailure(err))
		}

		for i, s := range suggestions {
			fmt.Printf("  %s %s\n", colorize(colorCyan, fmt.Sprintf("%2d.", i+1)), s)
		}
		return nil
	},
}

func init() {
	suggestCmd.Flags().Int("count", 0, "maximum number of suggestions (0 for all)")
}

// --- stats ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show backend health and usage statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession()
		if err != nil {
			return err
		}
		defer sess.close()

		health, err := sess.client.Health(cmd.Context())
		if err != nil {
			printStatus("Backend", "unreachable (%s)", friendlyFailure(err))
			return nil
		}
		printStatus("Backend", "%s", health.Status)
		if health.RAGInitialized {
			printStatus("Knowledge base", "ready")
		} else {
			printStatus("Knowledge base", "initializing")
		}

		sr, err := sess.client.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("%s", friendlyFailure(err))
		}
		for _, key := range []string{
			"total_queries", "cache_hits", "cache_misses",
			"cache_hit_rate", "average_response_time", "llm_model",
			"cache_size", "cache_max_size",
		} {
			if v, ok := sr.Stats[key]; ok {
				printStatus(strings.ReplaceAll(key, "_", " "), "%v", v)
			}
		}
		return nil
	},
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show or clear the stored chat transcript",
}

var historyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show recent chat messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		hist, err := history.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening history: %w", err)
		}
		defer hist.Close()

		entries, err := hist.Recent(limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No messages yet.")
			return nil
		}

		for _, e := range entries {
			ts := e.CreatedAt.Local().Format("15:04")
			label := colorize(colorBold, "you")
			if e.Sender == history.SenderBot {
				label = colorize(colorBlue, "assistant")
				if e.IsError {
					label = colorize(colorRed, "error")
				}
			}
			suffix := ""
			if e.Cached {
				suffix = colorize(colorDim, " (cached)")
			}
			fmt.Printf("%s %s: %s%s\n", colorize(colorDim, ts), label, e.Content, suffix)
		}
		return nil
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the stored chat transcript",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		hist, err := history.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening history: %w", err)
		}
		defer hist.Close()

		if err := hist.Clear(); err != nil {
			return err
		}
		printSuccess("History cleared")
		return nil
	},
}

func init() {
	historyShowCmd.Flags().Int("limit", 20, "maximum number of messages to show")
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyClearCmd)
}

// --- credential ---

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage the API key sent to the backend",
}

var credentialSetCmd = &cobra.Command{
	Use:   "set <key>",
	Short: "Store an API key for backend requests",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession()
		if err != nil {
			return err
		}
		defer sess.close()

		if !sess.kv.SetRaw(store.KeyCredential, args[0]) {
			return fmt.Errorf("could not save credential")
		}
		printSuccess("Credential saved")
		return nil
	},
}

var credentialClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession()
		if err != nil {
			return err
		}
		defer sess.close()

		sess.kv.Remove(store.KeyCredential)
		printSuccess("Credential removed")
		return nil
	},
}

func init() {
	credentialCmd.AddCommand(credentialSetCmd)
	credentialCmd.AddCommand(credentialClearCmd)
}

// --- theme ---

var validThemes = []string{"light", "dark"}

var themeCmd = &cobra.Command{
	Use:   "theme",
	Short: "Show or set the display theme",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession()
		if err != nil {
			return err
		}
		defer sess.close()

		printStatus("Theme", "%s", sess.kv.GetRaw(store.KeyTheme, "light"))
		return nil
	},
}

var themeSetCmd = &cobra.Command{
	Use:   "set <light|dark>",
	Short: "Set the display theme",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		theme := args[0]
		valid := false
		for _, t := range validThemes {
			if theme == t {
				valid = true
			}
		}
		if !valid {
			return fmt.Errorf("invalid theme %q (valid: %s)", theme, strings.Join(validThemes, ", "))
		}

		sess, err := newSession()
		if err != nil {
			return err
		}
		defer sess.close()

		if !sess.kv.SetRaw(store.KeyTheme, theme) {
			return fmt.Errorf("could not save theme")
		}
		printSuccess("Theme set to %s", theme)
		return nil
	},
}

func init() {
	themeCmd.AddCommand(themeSetCmd)
}

// --- cache ---

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the backend's query cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the backend's query cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := newSession()
		if err != nil {
			return err
		}
		defer sess.close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		if err := sess.client.ClearCache(ctx); err != nil {
			return fmt.Errorf("%s", friendlyFailure(err))
		}
		printSuccess("Backend cache cleared")
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
