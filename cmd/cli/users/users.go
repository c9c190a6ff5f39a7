package users

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/crucial707/radar/cmd/cli/client"
	"github.com/crucial707/radar/cmd/cli/config"
	"github.com/crucial707/radar/cmd/cli/output"
	"github.com/crucial707/radar/internal/models"
	"github.com/spf13/cobra"
)

// ==========================
// CLI Command Init
// ==========================
func InitUsers(rootCmd *cobra.Command) {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Manage your account",
		Long: `Register, log in and manage your Radar profile.
The bearer token is stored locally for later commands.`,
	}

	usersCmd.AddCommand(
		registerCmd(),
		loginCmd(),
		logoutCmd(),
		whoamiCmd(),
		getUserCmd(),
		updateCmd(),
		deactivateCmd(),
	)
	rootCmd.AddCommand(usersCmd)
}

// ==========================
// Register User
// ==========================
func registerCmd() *cobra.Command {
	var username, email, password string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new user",
		RunE: func(cmd *cobra.Command, args []string) error {
			username = promptIfEmpty(username, "Username")
			email = promptIfEmpty(email, "Email")
			password = promptIfEmpty(password, "Password")

			var user models.User
			err := client.New().JSON("POST", "/users", map[string]string{
				"username": username,
				"email":    email,
				"password": password,
			}, &user)
			if err != nil {
				return err
			}
			if asJSON {
				return output.RenderJSON(user)
			}
			fmt.Printf("User %s registered (id %d). You can now login.\n", user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Username (3-50 letters, digits, _ or -)")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password (at least 8 characters)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

// ==========================
// Login User
// ==========================
func loginCmd() *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login and save the bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			username = promptIfEmpty(username, "Username")
			password = promptIfEmpty(password, "Password")

			var resp struct {
				AccessToken string       `json:"access_token"`
				User        *models.User `json:"user"`
			}
			err := client.New().JSON("POST", "/auth/login", map[string]string{
				"username": username,
				"password": password,
			}, &resp)
			if err != nil {
				return fmt.Errorf("failed to login: %w", err)
			}
			if resp.AccessToken == "" {
				return fmt.Errorf("login succeeded but no token returned")
			}
			if err := config.SaveToken(resp.AccessToken); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}
			fmt.Println("Login successful! Token saved to", config.TokenPath())
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "Username")
	cmd.Flags().StringVar(&password, "password", "", "Password")
	return cmd
}

// ==========================
// Logout User
// ==========================
func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the saved token",
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := config.ClearToken()
			if err != nil {
				return err
			}
			if !removed {
				fmt.Println("No user logged in.")
				return nil
			}
			fmt.Println("Logged out successfully.")
			return nil
		},
	}
}

// ==========================
// Whoami / Get User
// ==========================
func whoamiCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New()
			if err := c.RequireToken(); err != nil {
				return err
			}
			var user models.User
			if err := c.JSON("GET", "/users/me", nil, &user); err != nil {
				return err
			}
			return renderUser(user, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func getUserCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a user's public profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			var user models.User
			if err := client.New().JSON("GET", "/users/"+strconv.Itoa(id), nil, &user); err != nil {
				return err
			}
			return renderUser(user, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

// ==========================
// Update Profile
// ==========================
func updateCmd() *cobra.Command {
	var username, email, bio string
	var clearBio, asJSON bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update your username, email or bio",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{}
			if cmd.Flags().Changed("username") {
				payload["username"] = username
			}
			if cmd.Flags().Changed("email") {
				payload["email"] = email
			}
			switch {
			case clearBio:
				payload["bio"] = nil
			case cmd.Flags().Changed("bio"):
				payload["bio"] = bio
			}
			if len(payload) == 0 {
				return fmt.Errorf("nothing to update: pass --username, --email, --bio or --clear-bio")
			}

			c := client.New()
			if err := c.RequireToken(); err != nil {
				return err
			}
			var user models.User
			if err := c.JSON("PUT", "/users/me", payload, &user); err != nil {
				return err
			}
			return renderUser(user, asJSON)
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "New username")
	cmd.Flags().StringVar(&email, "email", "", "New email")
	cmd.Flags().StringVar(&bio, "bio", "", "New bio")
	cmd.Flags().BoolVar(&clearBio, "clear-bio", false, "Remove the bio")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	cmd.MarkFlagsMutuallyExclusive("bio", "clear-bio")
	return cmd
}

// ==========================
// Deactivate Account
// ==========================
func deactivateCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "deactivate",
		Short: "Deactivate your account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to deactivate without --yes")
			}
			c := client.New()
			if err := c.RequireToken(); err != nil {
				return err
			}
			if err := c.JSON("DELETE", "/users/me", nil, nil); err != nil {
				return err
			}
			if _, err := config.ClearToken(); err != nil {
				return err
			}
			fmt.Println("Account deactivated. Local token removed.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deactivation")
	return cmd
}

func renderUser(u models.User, asJSON bool) error {
	if asJSON {
		return output.RenderJSON(u)
	}
	output.RenderTable(
		[]string{"ID", "Username", "Email", "Bio", "Active", "Created"},
		[][]interface{}{{u.ID, u.Username, u.Email, output.Deref(u.Bio), u.IsActive, u.CreatedAt.Format(time.RFC3339)}},
	)
	return nil
}

var stdin = bufio.NewReader(os.Stdin)

func promptIfEmpty(v, label string) string {
	if v != "" {
		return v
	}
	fmt.Print(label + ": ")
	line, _ := stdin.ReadString('\n')
	return strings.TrimSpace(line)
}
