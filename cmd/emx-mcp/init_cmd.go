package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/emx-mail/mcp/pkgs/config"
)

type initFlags struct {
	force         bool
	storePassword bool
}

func newInitCmd(a *app) *cobra.Command {
	var f initFlags

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an example configuration file",
		Long: `Write an example configuration file to --config, $` + config.EnvConfigPath + ` or
~/.config/emx-mail/config.yaml. The password is never written to the file;
set it in the environment or store it in the OS keyring with --store-password.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.configFile
			if path == "" {
				path = os.Getenv(config.EnvConfigPath)
			}
			if path == "" {
				path = config.DefaultConfigPath()
			}

			user, _ := cmd.Flags().GetString("user")
			if f.storePassword && user == "" {
				return errors.New("--store-password needs --user")
			}

			example := config.Example()
			if user != "" {
				example.User = user
			}
			if f.storePassword {
				example.Keyring = true
			}
			if err := config.Save(path, example, f.force); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created config file at: %s\n", path)

			if f.storePassword {
				password, err := readPassword(cmd)
				if err != nil {
					return err
				}
				if err := config.StorePassword(a.keyring, user, password); err != nil {
					return err
				}
				fmt.Fprintf(out, "Stored password for %s in the OS keyring\n", user)
				return nil
			}

			fmt.Fprintln(out, "Please edit the file and set EMX_MAIL_PASSWORD (or GMAIL_APP_PASSWORD).")
			return nil
		},
	}

	cmd.Flags().BoolVar(&f.force, "force", false, "Overwrite an existing config file")
	cmd.Flags().BoolVar(&f.storePassword, "store-password", false, "Prompt for the password and store it in the OS keyring")

	return cmd
}

// readPassword prompts on a terminal, or reads one line from a pipe.
func readPassword(cmd *cobra.Command) (string, error) {
	if fd := int(os.Stdin.Fd()); cmd.InOrStdin() == os.Stdin && term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		data, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(data), nil
	}

	line, err := readBodySource("-", cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("empty password")
	}
	return password, nil
}
