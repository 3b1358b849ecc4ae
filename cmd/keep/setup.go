// ABOUTME: Operator subcommands that prepare a keep installation
// ABOUTME: init writes a starter config; adduser and token manage players offline

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/coven-keep/internal/auth"
	"github.com/2389/coven-keep/internal/config"
	"github.com/2389/coven-keep/internal/store"
)

func newInitCmd(resolveConfig func() string) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout(), resolveConfig(), getDataPath(), force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing config file")
	return cmd
}

func runInit(in io.Reader, out io.Writer, configPath, dataPath string, force bool) error {
	reader := bufio.NewReader(in)

	if _, err := os.Stat(configPath); err == nil && !force {
		overwrite := prompt(reader, out, "File exists. Overwrite?", "no")
		if !isYes(overwrite) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	dbPath := filepath.Join(dataPath, "keep.db")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(dataPath, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(config.Starter(dbPath)), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Fprintf(out, "Wrote %s\n", configPath)
	fmt.Fprintf(out, "Database will be created at %s\n", dbPath)
	fmt.Fprintln(out, "Next: keep adduser <name> --superuser")
	return nil
}

type addUserOptions struct {
	password  string
	superuser bool
	rank      int
	caps      string
	home      int64
}

func newAddUserCmd(resolveConfig func() string) *cobra.Command {
	var opts addUserOptions
	cmd := &cobra.Command{
		Use:   "adduser NAME",
		Short: "Create a player actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfig())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if opts.password == "" {
				opts.password = prompt(bufio.NewReader(cmd.InOrStdin()), cmd.OutOrStdout(), "Password", "")
			}
			a, err := addUser(cmd.Context(), cfg.Database.Path, args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", a)
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.password, "password", "p", "", "password (prompted when omitted)")
	cmd.Flags().BoolVar(&opts.superuser, "superuser", false, "make the actor a superuser with every capability")
	cmd.Flags().IntVar(&opts.rank, "rank", 0, "control rank")
	cmd.Flags().StringVar(&opts.caps, "caps", "", "comma-separated capabilities ("+knownCapabilities()+")")
	cmd.Flags().Int64Var(&opts.home, "home", 0, "home location id")
	return cmd
}

func addUser(ctx context.Context, dbPath, name string, opts addUserOptions) (*store.Actor, error) {
	if strings.TrimSpace(opts.password) == "" {
		return nil, errors.New("a password is required")
	}

	caps := auth.ParseCapabilities(opts.caps)
	for c := range caps {
		if !isKnownCapability(c) {
			return nil, fmt.Errorf("unknown capability %q (known: %s)", c, knownCapabilities())
		}
	}
	if opts.superuser {
		caps = auth.NewCapabilitySet(auth.Known...)
	}

	hash, err := auth.HashPassword(opts.password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	defer func() { _ = s.Close() }()

	a := &store.Actor{
		Name:         name,
		PasswordHash: hash,
		Player:       true,
		Superuser:    opts.superuser,
		Rank:         opts.rank,
		Capabilities: caps,
		Home:         opts.home,
		Location:     opts.home,
	}
	if err := s.CreateActor(ctx, a); err != nil {
		if errors.Is(err, store.ErrDuplicateActor) {
			return nil, fmt.Errorf("an actor named %q already exists", name)
		}
		return nil, fmt.Errorf("creating actor: %w", err)
	}
	return a, nil
}

func newTokenCmd(resolveConfig func() string) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token NAME",
		Short: "Issue a WebSocket login token for a player",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfig())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if ttl == 0 {
				ttl = cfg.Auth.TokenTTL
			}
			token, err := issueToken(cmd.Context(), cfg, args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: auth.token_ttl)")
	return cmd
}

func issueToken(ctx context.Context, cfg *config.Config, name string, ttl time.Duration) (string, error) {
	if cfg.Auth.TokenSecret == "" {
		return "", errors.New("auth.token_secret is not configured")
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return "", fmt.Errorf("opening store: %w", err)
	}
	defer func() { _ = s.Close() }()

	a, err := s.GetActorByName(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("no actor named %q", name)
		}
		return "", fmt.Errorf("looking up actor: %w", err)
	}
	if !a.Player {
		return "", fmt.Errorf("%s is not a player", a)
	}
	return auth.NewTokens([]byte(cfg.Auth.TokenSecret)).Issue(a.ID, ttl)
}

func isKnownCapability(c auth.Capability) bool {
	for _, k := range auth.Known {
		if k == c {
			return true
		}
	}
	return false
}

func knownCapabilities() string {
	names := make([]string, len(auth.Known))
	for i, c := range auth.Known {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}

func isYes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "yes" || s == "y"
}

// prompt asks a question and returns the answer, or defaultVal when empty.
func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}
	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}
