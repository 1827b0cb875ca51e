// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/calltally/lib/atomicfile"
	"github.com/bureau-foundation/calltally/lib/cli"
	"github.com/bureau-foundation/calltally/lib/credential"
)

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:    "token",
		Summary: "Manage the encrypted Matrix access token",
		Description: `The bot reads its access token from an environment variable or from an
age-encrypted file. These commands create the identity that decrypts
the file and seal a token to it.`,
		Subcommands: []*cli.Command{
			keygenCommand(),
			sealCommand(),
		},
	}
}

func keygenCommand() *cli.Command {
	var identityPath string
	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate an identity for decrypting the token file",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("keygen")
			flagSet.StringVarP(&identityPath, "identity", "i", "", "where to write the identity file (required)")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Create the bot's identity", Command: "calltally token keygen -i /var/lib/calltally/identity.txt"},
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			if identityPath == "" {
				return fmt.Errorf("--identity is required")
			}
			if _, err := os.Stat(identityPath); err == nil {
				return fmt.Errorf("%s already exists; refusing to overwrite an identity", identityPath)
			} else if !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			identity, recipient, err := credential.GenerateIdentity()
			if err != nil {
				return err
			}
			defer clear(identity)
			if err := atomicfile.Write(identityPath, identity, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Identity written to %s\n", identityPath)
			fmt.Println(recipient)
			return nil
		},
	}
}

func sealCommand() *cli.Command {
	var (
		recipients []string
		output     string
	)
	return &cli.Command{
		Name:    "seal",
		Summary: "Encrypt an access token to one or more recipients",
		Description: `Read an access token and write it encrypted to the given age
recipients. The token is prompted for without echo when standard input
is a terminal, and read from standard input otherwise.`,
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("seal")
			flagSet.StringArrayVarP(&recipients, "recipient", "r", nil, "age recipient (age1...), repeatable")
			flagSet.StringVarP(&output, "output", "o", "-", `sealed token path, or "-" for standard output`)
			return flagSet
		},
		Examples: []cli.Example{
			{
				Description: "Seal a token read from a password manager",
				Command:     "pass show matrix/calltally | calltally token seal -r age1... -o token.age",
			},
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			if len(recipients) == 0 {
				return fmt.Errorf("at least one --recipient is required")
			}
			token, err := readToken(os.Stdin)
			if err != nil {
				return err
			}
			defer clear(token)

			sealed, err := credential.Seal(token, recipients)
			if err != nil {
				return err
			}
			return writeOutput(output, sealed)
		},
	}
}

// readToken prompts without echo on a terminal and otherwise reads all
// of input. Surrounding whitespace is removed.
func readToken(input *os.File) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	descriptor := int(input.Fd())
	if term.IsTerminal(descriptor) {
		fmt.Fprint(os.Stderr, "Access token: ")
		data, err = term.ReadPassword(descriptor)
		fmt.Fprintln(os.Stderr)
	} else {
		data, err = io.ReadAll(input)
	}
	if err != nil {
		clear(data)
		return nil, fmt.Errorf("reading token: %w", err)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		clear(data)
		return nil, fmt.Errorf("token is empty")
	}
	return trimmed, nil
}
