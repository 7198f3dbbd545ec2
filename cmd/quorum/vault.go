package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/mtzanidakis/quorum/internal/config"
	"github.com/mtzanidakis/quorum/internal/store"
	"github.com/mtzanidakis/quorum/internal/vault"
)

func runVault(args []string) error {
	if len(args) == 0 {
		printVaultUsage()
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Vault.Passphrase == "" {
		return fmt.Errorf("QUORUM_VAULT_PASSPHRASE or vault.passphrase is required")
	}
	v := vault.New(cfg.Vault.Passphrase)

	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	switch args[0] {
	case "list":
		return vaultList(os.Stdout, db)
	case "set":
		return vaultSet(os.Stdout, db, v, args[1:])
	case "get":
		return vaultGet(os.Stdout, db, v, args[1:])
	case "delete":
		return vaultDelete(os.Stdout, db, args[1:])
	default:
		printVaultUsage()
		return fmt.Errorf("unknown vault command: %s", args[0])
	}
}

func printVaultUsage() {
	fmt.Fprintf(os.Stderr, `Usage: quorum vault <command>

Commands:
  list                                            List all secrets (metadata only)
  set <name> --value <str> [--description <text>] Store a secret
  set <name> --file <path> [--description <text>] Store a file's contents
  get <name>                                      Decrypt and print a secret
  delete <name>                                   Delete a secret

Config values of the form "secret:<name>" are resolved from the vault at
startup (llm.api_key, credentials.token, credentials.client_secret, web.auth).

Environment:
  QUORUM_VAULT_PASSPHRASE                         Encryption passphrase
`)
}

func vaultList(w io.Writer, db *store.Store) error {
	secrets, err := db.ListSecrets()
	if err != nil {
		return err
	}
	if len(secrets) == 0 {
		fmt.Fprintln(w, "No secrets stored.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tDESCRIPTION\tUPDATED")
	for _, s := range secrets {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, s.Description, s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func vaultSet(w io.Writer, db *store.Store, v *vault.Vault, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: quorum vault set <name> --value <string> | --file <path> [--description <text>]")
	}

	name := args[0]
	var value []byte
	switch args[1] {
	case "--value":
		value = []byte(args[2])
	case "--file":
		data, err := os.ReadFile(args[2])
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}
		value = data
	default:
		return fmt.Errorf("expected --value or --file, got %s", args[1])
	}

	description := ""
	for i := 3; i < len(args)-1; i++ {
		if args[i] == "--description" {
			description = args[i+1]
			break
		}
	}

	sealed, err := v.Seal(name, value)
	if err != nil {
		return fmt.Errorf("encrypt: %w", err)
	}
	sec := &store.Secret{
		ID:          name,
		Name:        name,
		Description: description,
		Value:       sealed.Ciphertext,
		Nonce:       sealed.Nonce,
	}
	if err := db.SaveSecret(sec); err != nil {
		return err
	}
	fmt.Fprintf(w, "Secret %q saved\n", name)
	return nil
}

func vaultGet(w io.Writer, db *store.Store, v *vault.Vault, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: quorum vault get <name>")
	}

	sec, err := db.GetSecret(args[0])
	if err != nil {
		return err
	}
	if sec == nil {
		return fmt.Errorf("secret %q not found", args[0])
	}

	plaintext, err := v.Open(sec.ID, vault.Sealed{Ciphertext: sec.Value, Nonce: sec.Nonce})
	if err != nil {
		return fmt.Errorf("decrypt: %w", err)
	}
	fmt.Fprint(w, string(plaintext))
	if len(plaintext) > 0 && plaintext[len(plaintext)-1] != '\n' {
		fmt.Fprintln(w)
	}
	return nil
}

func vaultDelete(w io.Writer, db *store.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: quorum vault delete <name>")
	}
	found, err := db.DeleteSecret(args[0])
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("secret %q not found", args[0])
	}
	fmt.Fprintf(w, "Secret %q deleted\n", args[0])
	return nil
}
