// ABOUTME: Vault subcommands: list, set-key, remove-key, export, import
// ABOUTME: Keys are read from stdin so they never land in shell history

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/driftline/driftline/internal/vault"
)

func cmdVault(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: driftline vault <list|set-key|remove-key|export|import>")
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	switch args[0] {
	case "list":
		return vaultList(a)
	case "set-key":
		return vaultSetKey(ctx, a, args[1:])
	case "remove-key":
		return vaultRemoveKey(ctx, a, args[1:])
	case "export":
		return vaultExport(a)
	case "import":
		return vaultImport(ctx, a, args[1:])
	default:
		return fmt.Errorf("unknown vault command: %s", args[0])
	}
}

func vaultList(a *app) error {
	keyring := a.vault.Keyring()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tKEY\tLABEL\tLAST USED")
	for _, provider := range vault.Providers {
		entry := keyring[provider]
		if entry == nil {
			fmt.Fprintf(w, "%s\t-\t\t\n", provider)
			continue
		}
		lastUsed := "never"
		if entry.LastUsedAt != nil {
			lastUsed = entry.LastUsedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", provider, maskKey(entry.Key), entry.Label, lastUsed)
	}
	return w.Flush()
}

func vaultSetKey(ctx context.Context, a *app, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: driftline vault set-key <provider> [label]")
	}
	provider := vault.Provider(args[0])
	label := ""
	if len(args) > 1 {
		label = strings.Join(args[1:], " ")
	}

	fmt.Fprint(os.Stderr, "API key: ")
	reader := bufio.NewReader(os.Stdin)
	key, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("reading key: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("empty key")
	}

	if _, err := a.vault.SetKey(ctx, provider, key, label); err != nil {
		return err
	}
	color.Green("Stored key for %s\n", provider)
	return nil
}

func vaultRemoveKey(ctx context.Context, a *app, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: driftline vault remove-key <provider>")
	}
	provider := vault.Provider(args[0])
	if _, err := a.vault.RemoveKey(ctx, provider); err != nil {
		return err
	}
	color.Green("Removed key for %s\n", provider)
	return nil
}

func vaultExport(a *app) error {
	blob, err := a.vault.ExportBlob()
	if err != nil {
		return err
	}
	fmt.Println(blob)
	return nil
}

func vaultImport(ctx context.Context, a *app, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: driftline vault import <passphrase>  (blob on stdin)")
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("reading blob: %w", err)
	}
	blob := strings.TrimSpace(string(data))
	if blob == "" {
		return fmt.Errorf("empty blob")
	}

	keyring, err := a.vault.ImportBlob(ctx, blob, args[0])
	if err != nil {
		return err
	}
	color.Green("Imported; %d provider(s) now configured\n", len(keyring))
	return nil
}

// maskKey shows just enough of a key to recognize it.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
