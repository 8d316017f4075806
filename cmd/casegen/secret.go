// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Casegen Contributors

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/casegen/casegen/internal/secrets"
	cgerr "github.com/casegen/casegen/pkg/errors"
)

// secretStoreFactory creates a secrets.Store. It is a package-level variable
// so tests can substitute a mock implementation.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyring()
}

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets stored in the OS keyring",
		Long: `Store and delete API keys and export tokens in the operating system keyring.
Reference a stored secret from the config file as keyring://casegen/<name>.`,
	}

	cmd.AddCommand(
		newSecretSetCmd(),
		newSecretDeleteCmd(),
	)

	return cmd
}

func newSecretSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> [value]",
		Short: "Store a secret; the value is read from stdin when omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runSecretSet,
	}
}

func newSecretDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a secret by name",
		Args:  cobra.ExactArgs(1),
		RunE:  runSecretDelete,
	}
}

func runSecretSet(cmd *cobra.Command, args []string) error {
	name := args[0]

	var value string
	if len(args) == 2 {
		value = args[1]
	} else {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return cgerr.Errorf(cgerr.CodeCLIInputInvalid, "reading secret value from stdin: %w", err)
		}
		value = strings.TrimRight(line, "\r\n")
	}
	if value == "" {
		return cgerr.New(cgerr.CodeCLIInputInvalid, "secret value must not be empty")
	}

	if err := secretStoreFactory().Set(secrets.DefaultService, name, value); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Stored secret %s\nReference it as %s\n", name, secrets.Ref(secrets.DefaultService, name))
	return nil
}

func runSecretDelete(cmd *cobra.Command, args []string) error {
	name := args[0]

	if err := secretStoreFactory().Delete(secrets.DefaultService, name); err != nil {
		if cgerr.HasCode(err, cgerr.CodeSecretNotFound) {
			return cgerr.Errorf(cgerr.CodeSecretNotFound, "secret %q not found", name)
		}
		return cgerr.Wrapf(err, cgerr.CodeSecretDeleteFailure, "deleting secret %q", name)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted secret: %s\n", name)
	return nil
}
