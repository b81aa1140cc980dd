// ABOUTME: CLI for the driftline sync core: chats, messages, branching, and the vault
// ABOUTME: Wires config, SQLite cache, remote client, coordinator, and credential vault

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	stdsync "sync"
	"syscall"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/driftline/driftline/internal/config"
	"github.com/driftline/driftline/internal/remote"
	"github.com/driftline/driftline/internal/store"
	driftsync "github.com/driftline/driftline/internal/sync"
	"github.com/driftline/driftline/internal/vault"
)

func getConfigPath() string {
	if envPath := os.Getenv("DRIFTLINE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "driftline.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "driftline", "driftline.yaml")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "chats":
		err = cmdChats(ctx)
	case "open":
		err = cmdOpen(ctx, args)
	case "send":
		err = cmdSend(ctx, args)
	case "branch":
		err = cmdBranch(ctx, args)
	case "copy-shared":
		err = cmdCopyShared(ctx, args)
	case "rename":
		err = cmdRename(ctx, args)
	case "pin":
		err = cmdPin(ctx, args)
	case "delete":
		err = cmdDelete(ctx, args)
	case "watch":
		err = cmdWatch(ctx, args)
	case "vault":
		err = cmdVault(ctx, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	yellow := color.New(color.FgYellow)

	fmt.Println("Usage: driftline <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  chats                        List your chats (refreshed from the backend)")
	fmt.Println("  open <chat-id>               Open a chat and print its messages")
	fmt.Println("  send <chat-id> <text>        Append a user message to a chat")
	fmt.Println("  branch <chat-id> <msg-id>    Fork a chat at a message into a new chat")
	fmt.Println("  copy-shared <share-id>       Copy a shared chat into your account")
	fmt.Println("  rename <chat-id> <title>     Rename a chat")
	fmt.Println("  pin <chat-id> <on|off>       Pin or unpin a chat")
	fmt.Println("  delete <chat-id>             Delete a chat and its messages")
	fmt.Println("  watch <chat-id>              Open a chat and follow new messages")
	fmt.Println("  vault list                   Show which providers have keys")
	fmt.Println("  vault set-key <provider>     Store an API key (read from stdin)")
	fmt.Println("  vault remove-key <provider>  Remove a provider's key")
	fmt.Println("  vault export                 Print the encrypted vault blob")
	fmt.Println("  vault import <passphrase>    Import a blob from stdin, merging keys")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  DRIFTLINE_CONFIG             Config file path (default: ~/.config/driftline/driftline.yaml)")
	fmt.Println()
}

// app bundles the wired subsystems behind every subcommand.
type app struct {
	cfg   *config.Config
	cache *store.SQLiteCache
	coord *driftsync.Coordinator
	vault *vault.Vault
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(setupLogger(cfg.Logging))

	if dir := filepath.Dir(cfg.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	cache, err := store.NewSQLiteCache(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	secretPath := cfg.Vault.DeviceSecretPath
	if secretPath == "" {
		secretPath = filepath.Join(filepath.Dir(cfg.Database.Path), "device.key")
	}
	deviceSecret, err := vault.DeviceSecret(secretPath)
	if err != nil {
		cache.Close()
		return nil, fmt.Errorf("loading device secret: %w", err)
	}

	client := remote.NewHTTPClient(cfg.Remote.BaseURL, cfg.Identity.OwnerID,
		[]byte(cfg.Remote.JWTSecret), cfg.Remote.Timeout)

	a := &app{
		cfg:   cfg,
		cache: cache,
		coord: driftsync.New(cache, client, cfg.Identity.OwnerID),
		vault: vault.New(cache, deviceSecret),
	}
	if _, err := a.vault.Unlock(ctx); err != nil {
		// A corrupt blob resets the vault to empty; keys must be re-added.
		slog.Warn("credential vault reset", "error", err)
	}
	return a, nil
}

func (a *app) close() {
	if err := a.cache.Close(); err != nil {
		slog.Warn("closing cache", "error", err)
	}
}

func cmdChats(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	chats, err := a.coord.RefreshChatList(ctx)
	if err != nil {
		// Offline: fall back to the cached list.
		slog.Warn("backend unreachable, showing cached chats", "error", err)
		chats, err = a.cache.ListChatsByOwner(ctx, a.cfg.Identity.OwnerID)
		if err != nil {
			return fmt.Errorf("reading cached chats: %w", err)
		}
	}

	if len(chats) == 0 {
		fmt.Println("No chats.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tUPDATED\tFLAGS")
	for _, chat := range chats {
		var flags []string
		if chat.Pinned {
			flags = append(flags, "pinned")
		}
		if chat.Shared {
			flags = append(flags, "shared")
		}
		if chat.ParentChatID != "" {
			flags = append(flags, "branch")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			chat.ID, chat.Title, chat.UpdatedAt.Format("2006-01-02 15:04"), strings.Join(flags, ","))
	}
	return w.Flush()
}

func cmdOpen(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: driftline open <chat-id>")
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.coord.Select(ctx, args[0]); err != nil {
		return err
	}
	printMessages(a.coord.Session().Messages())
	return nil
}

func cmdSend(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: driftline send <chat-id> <text>")
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.coord.Select(ctx, args[0]); err != nil {
		return err
	}
	msg := &store.Message{Role: store.RoleUser, Content: strings.Join(args[1:], " ")}
	if err := a.coord.AddMessage(ctx, msg); err != nil {
		return err
	}
	color.Green("Sent %s\n", msg.ID)
	return nil
}

func cmdBranch(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: driftline branch <chat-id> <message-id>")
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.coord.Select(ctx, args[0]); err != nil {
		return err
	}
	newID, err := a.coord.BranchConversation(ctx, args[1])
	if err != nil {
		return err
	}
	color.Green("Branched into %s\n", newID)
	return nil
}

func cmdCopyShared(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: driftline copy-shared <shared-chat-id> [title]")
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	title := ""
	if len(args) > 1 {
		title = strings.Join(args[1:], " ")
	}
	newID, err := a.coord.CopySharedChat(ctx, args[0], title)
	if err != nil {
		return err
	}
	color.Green("Copied into %s\n", newID)
	return nil
}

func cmdRename(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: driftline rename <chat-id> <title>")
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	title := strings.Join(args[1:], " ")
	if err := a.coord.UpdateChat(ctx, args[0], map[string]any{"title": title}); err != nil {
		return err
	}
	color.Green("Renamed %s\n", args[0])
	return nil
}

func cmdPin(ctx context.Context, args []string) error {
	if len(args) < 2 || (args[1] != "on" && args[1] != "off") {
		return fmt.Errorf("usage: driftline pin <chat-id> <on|off>")
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.coord.UpdateChat(ctx, args[0], map[string]any{"pinned": args[1] == "on"}); err != nil {
		return err
	}
	color.Green("Pin %s for %s\n", args[1], args[0])
	return nil
}

func cmdWatch(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: driftline watch <chat-id>")
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.coord.Select(ctx, args[0]); err != nil {
		return err
	}
	seen := a.coord.Session().Messages()
	printMessages(seen)

	// Follow the chat until interrupted, printing whatever the periodic
	// refresh brings in.
	a.coord.AutoRefresh(ctx, a.cfg.Sync.RefreshInterval, func() {
		messages := a.coord.Session().Messages()
		if len(messages) > len(seen) {
			printMessages(messages[len(seen):])
		}
		seen = messages
	})
	return nil
}

func cmdDelete(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: driftline delete <chat-id>")
	}
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.coord.DeleteChat(ctx, args[0]); err != nil {
		return err
	}
	color.Green("Deleted %s\n", args[0])
	return nil
}

func printMessages(messages []*store.Message) {
	if len(messages) == 0 {
		fmt.Println("No messages.")
		return
	}
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	for _, msg := range messages {
		switch msg.Role {
		case store.RoleUser:
			cyan.Printf("[%s] you: ", msg.CreatedAt.Format("15:04"))
		case store.RoleAssistant:
			green.Printf("[%s] assistant: ", msg.CreatedAt.Format("15:04"))
		default:
			fmt.Printf("[%s] %s: ", msg.CreatedAt.Format("15:04"), msg.Role)
		}
		fmt.Println(msg.Content)
	}
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     stdsync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Fprint(os.Stderr, buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
