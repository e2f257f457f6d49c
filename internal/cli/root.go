// Package cli implements the gamelog command line client.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gamelog/internal/util"
	"gamelog/pkg/authclient"
	"gamelog/pkg/collectionclient"
	"gamelog/pkg/domain"
	"gamelog/pkg/identity"
	"gamelog/pkg/library"
)

const (
	defaultAuthURL       = "http://localhost:8081"
	defaultCollectionURL = "http://localhost:8082"
)

var errNotSignedIn = errors.New("not signed in; run `gamelog login` first")

// env is what every subcommand works against. It is built once per
// invocation from the resolved configuration.
type env struct {
	v       *viper.Viper
	out     io.Writer
	in      *bufio.Reader
	logger  *slog.Logger
	auth    *identity.Provider
	remote  *collectionclient.Client
	library *library.Store
	now     func() time.Time
}

// NewRootCommand returns the `gamelog` command tree.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	e := &env{v: v, now: time.Now}

	root := &cobra.Command{
		Use:           "gamelog",
		Short:         "Keep a log of the games you finished",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.init(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default $XDG_CONFIG_HOME/gamelog/config.yaml)")
	flags.String("auth-url", defaultAuthURL, "identity service base URL")
	flags.String("collection-url", defaultCollectionURL, "collection service base URL")
	flags.String("session-file", "", "where the signed-in session is kept")
	flags.String("log-level", "warn", "debug, info, warn or error")
	flags.Duration("restore-timeout", library.DefaultRestoreTimeout, "how long to wait for the identity service when resuming a session")
	_ = v.BindPFlags(flags)

	v.SetEnvPrefix("GAMELOG")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	root.AddCommand(
		newSignupCommand(e),
		newLoginCommand(e),
		newLogoutCommand(e),
		newWhoamiCommand(e),
		newProfileCommand(e),
		newListCommand(e),
		newAddCommand(e),
		newEditCommand(e),
		newRemoveCommand(e),
		newStatsCommand(e),
		newEnhanceCommand(e),
		newExportCommand(e),
	)
	return root
}

func (e *env) init(cmd *cobra.Command) error {
	if err := readConfigFile(e.v); err != nil {
		return err
	}
	e.out = cmd.OutOrStdout()
	e.in = bufio.NewReader(cmd.InOrStdin())
	e.logger = util.InitLoggerTo(cmd.ErrOrStderr(), e.v.GetString("log-level"))

	sessionPath := e.v.GetString("session-file")
	if sessionPath == "" {
		p, err := identity.DefaultSessionPath()
		if err != nil {
			return fmt.Errorf("locate session file: %w", err)
		}
		sessionPath = p
	}
	e.auth = identity.NewProvider(authclient.NewClient(e.v.GetString("auth-url")), identity.NewFileSessionStore(sessionPath))
	e.remote = collectionclient.NewClient(e.v.GetString("collection-url"), e.auth)
	e.library = library.New(e.remote).WithLogger(e.logger)
	return nil
}

// readConfigFile loads --config or the default file when present. A missing
// default file is not an error.
func readConfigFile(v *viper.Viper) error {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil
	}
	v.SetConfigFile(filepath.Join(dir, "gamelog", "config.yaml"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// open resumes the persisted session and loads the player's games.
func (e *env) open(ctx context.Context) (domain.User, error) {
	user, ok, err := e.library.Restore(ctx, e.auth, e.v.GetDuration("restore-timeout"))
	if err != nil {
		if !ok {
			return domain.User{}, err
		}
		return user, fmt.Errorf("load games: %w", err)
	}
	if !ok {
		return domain.User{}, errNotSignedIn
	}
	return user, nil
}

// readLine prompts on out and reads one line from in.
func (e *env) readLine(prompt string) (string, error) {
	fmt.Fprint(e.out, prompt)
	line, err := e.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.TrimSpace(prompt), ":"), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// secret returns the flag value or prompts for it.
func (e *env) secret(cmd *cobra.Command, flag, prompt string) (string, error) {
	if v, _ := cmd.Flags().GetString(flag); v != "" {
		return v, nil
	}
	return e.readLine(prompt)
}
