package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"gamelog/pkg/domain"
	"gamelog/pkg/identity"
)

func newSignupCommand(e *env) *cobra.Command {
	var in identity.SignUpInput
	var platform string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if in.Password, err = e.secret(cmd, "password", "Password: "); err != nil {
				return err
			}
			if in.ConfirmPassword, err = e.secret(cmd, "confirm-password", "Confirm password: "); err != nil {
				return err
			}
			in.MainPlatform = domain.MainPlatform(platform)
			user, err := e.auth.SignUp(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Welcome, %s.\n", user.DisplayTag())
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Email, "email", "", "account email")
	f.StringVar(&in.Gamertag, "gamertag", "", "name shown on your log")
	f.StringVar(&platform, "main-platform", "", "PC, PlayStation, Xbox or Nintendo")
	f.StringVar(&in.FullName, "full-name", "", "optional full name")
	f.String("password", "", "password (prompted when omitted)")
	f.String("confirm-password", "", "password confirmation (prompted when omitted)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("gamertag")
	_ = cmd.MarkFlagRequired("main-platform")
	return cmd
}

func newLoginCommand(e *env) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := e.secret(cmd, "password", "Password: ")
			if err != nil {
				return err
			}
			user, err := e.auth.SignIn(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Signed in as %s.\n", user.DisplayTag())
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().String("password", "", "password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the local session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := e.auth.SignOut(cmd.Context()); err != nil {
				return err
			}
			e.library.Close()
			fmt.Fprintln(e.out, "Signed out.")
			return nil
		},
	}
}

func newWhoamiCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in player",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			writeProfile(e.out, user)
			return nil
		},
	}
}

func newProfileCommand(e *env) *cobra.Command {
	var gamertag, platform, fullName string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or change your gamertag, main platform and name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if !f.Changed("gamertag") && !f.Changed("main-platform") && !f.Changed("full-name") {
				writeProfile(e.out, user)
				return nil
			}
			profile := user.Profile
			if f.Changed("gamertag") {
				profile.Gamertag = gamertag
			}
			if f.Changed("main-platform") {
				profile.MainPlatform = domain.MainPlatform(platform)
			}
			if f.Changed("full-name") {
				profile.FullName = fullName
			}
			updated, err := e.auth.UpdateProfile(cmd.Context(), profile)
			if err != nil {
				return err
			}
			writeProfile(e.out, updated)
			return nil
		},
	}
	cmd.Flags().StringVar(&gamertag, "gamertag", "", "new gamertag")
	cmd.Flags().StringVar(&platform, "main-platform", "", "PC, PlayStation, Xbox or Nintendo")
	cmd.Flags().StringVar(&fullName, "full-name", "", "full name")
	return cmd
}
