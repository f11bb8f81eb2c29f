package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nerrad567/nexowatt-vis/internal/session"
)

var hashSecretCmd = &cobra.Command{
	Use:   "hash-secret",
	Short: "Hash an installer secret for installer.secret_hash",
	Long: `Read an installer secret from standard input and print its argon2id
hash. Put the output in installer.secret_hash (or NEXOWATT_INSTALLER_SECRET_HASH)
so the plaintext never has to live in the config file.

Example:
  printf '%s' 'my-secret' | nexowatt hash-secret`,
	Args: cobra.NoArgs,
	RunE: runHashSecret,
}

func init() {
	rootCmd.AddCommand(hashSecretCmd)
}

func runHashSecret(cmd *cobra.Command, _ []string) error {
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return errors.New("reading secret from stdin: no input")
	}
	secret := strings.TrimRight(line, "\r\n")
	if secret == "" {
		return errors.New("secret must not be empty")
	}

	hash, err := session.HashSecret(secret)
	if err != nil {
		return fmt.Errorf("hashing secret: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}
