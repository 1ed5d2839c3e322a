package config

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// PromptMissingPassword asks for the database password when the config left
// it empty and stdin is a terminal. Non-interactive runs (cron, CI) fail
// later at connect time instead of hanging on a prompt.
func (c *Config) PromptMissingPassword() error {
	if c.Database.Password != "" {
		return nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	fmt.Fprintf(os.Stderr, "Database password for %s@%s: ", c.Database.Username, c.Database.Host)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	c.Database.Password = string(pw)
	return nil
}
