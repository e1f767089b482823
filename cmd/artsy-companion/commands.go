package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/justestif/go-artsy-companion/internal/app"
	"github.com/justestif/go-artsy-companion/internal/artsy"
	"github.com/justestif/go-artsy-companion/internal/favorites"
	"github.com/justestif/go-artsy-companion/internal/session"
	"github.com/justestif/go-artsy-companion/internal/web"
)

var errNotLoggedIn = errors.New("not logged in")

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the UI bridge server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if addr == "" {
					addr = a.Config.ListenAddr
				}
				probe := a.Session.Start(ctx)
				defer probe.Cancel()

				srv := web.NewServer(web.ServerConfig{Addr: addr, Logger: a.Logger}, a.Core())
				fmt.Fprintf(cmd.OutOrStdout(), "Serving bridge at http://%s\n", addr)
				return srv.Run(ctx)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search artists by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				h := a.Search.Search(query)
				if h == nil {
					return fmt.Errorf("query must be at least %d characters", a.Config.SearchMinLength)
				}
				if err := h.Wait(ctx); err != nil {
					return err
				}

				state := a.Search.State()
				out := cmd.OutOrStdout()
				if state.ShowNoResults() {
					fmt.Fprintln(out, "No results found.")
					return nil
				}
				w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tNATIONALITY\tBORN")
				for _, artist := range state.Results {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", artist.ID, artist.Name, deref(artist.Nationality), deref(artist.Birthday))
				}
				return w.Flush()
			})
		},
	}
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and persist the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := passwordOrPrompt(cmd, password)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Session.Login(ctx, email, pw); err != nil {
					return err
				}
				printAuth(cmd.OutOrStdout(), a.Session.State())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (read from stdin when empty)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newRegisterCmd(opts *rootOptions) *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pw, err := passwordOrPrompt(cmd, password)
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Session.Register(ctx, name, email, pw); err != nil {
					if artsy.StatusCode(err) == http.StatusConflict {
						return fmt.Errorf("an account for %s already exists", email)
					}
					return err
				}
				printAuth(cmd.OutOrStdout(), a.Session.State())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Full name")
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (read from stdin when empty)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and forget the persisted session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				a.Session.Logout(ctx)
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
				return nil
			})
		},
	}
}

func newDeleteAccountCmd(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete-account",
		Short: "Delete the logged-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to delete the account without --yes")
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := requireSession(ctx, a); err != nil {
					return err
				}
				a.Session.DeleteAccount(ctx)
				fmt.Fprintln(cmd.OutOrStdout(), "Account deleted.")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the persisted session with the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Session.CheckAuthStatus(ctx); err != nil {
					return err
				}
				printAuth(cmd.OutOrStdout(), a.Session.State())
				return nil
			})
		},
	}
}

func newFavoritesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "favorites",
		Short: "List and edit favorite artists",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List favorites, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := requireSession(ctx, a); err != nil {
					return err
				}
				printFavorites(cmd.OutOrStdout(), a.Session.Favorites().SortedByRecent())
				return nil
			})
		},
	}

	var name string
	add := &cobra.Command{
		Use:   "add <artist-id>",
		Short: "Add an artist to favorites",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := requireSession(ctx, a); err != nil {
					return err
				}
				artist := artsy.Artist{ID: args[0], Name: name}
				if artist.Name == "" {
					if d, err := a.Artists.Load(ctx, artist.ID); err == nil && d.Artist != nil {
						artist.Name = d.Artist.Name
					}
				}
				if err := a.Session.AddFavorite(ctx, artist); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s.\n", displayName(artist))
				return nil
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "Artist name (looked up when empty)")

	rm := &cobra.Command{
		Use:     "rm <artist-id>",
		Aliases: []string{"remove"},
		Short:   "Remove an artist from favorites",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := requireSession(ctx, a); err != nil {
					return err
				}
				if err := a.Session.RemoveFavorite(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s.\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, add, rm)
	return cmd
}

func newArtistCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "artist <artist-id>",
		Short: "Show an artist with their artworks and similar artists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				detail, err := a.Artists.Load(ctx, args[0])
				if err != nil {
					return err
				}
				similar := a.Artists.Similar(ctx, args[0])

				out := cmd.OutOrStdout()
				d := detail.Artist
				fmt.Fprintf(out, "%s\n", d.Name)
				if life := lifespan(d.Birthday, d.Deathday); life != "" {
					fmt.Fprintf(out, "%s\n", life)
				}
				if n := deref(d.Nationality); n != "" {
					fmt.Fprintf(out, "%s\n", n)
				}
				if bio := deref(d.Biography); bio != "" {
					fmt.Fprintf(out, "\n%s\n", bio)
				}

				fmt.Fprintf(out, "\nArtworks (%d)\n", len(detail.Artworks))
				for _, w := range detail.Artworks {
					fmt.Fprintf(out, "  %s  %s %s\n", w.ID, w.Title, deref(w.Date))
				}
				if len(similar) > 0 {
					fmt.Fprintf(out, "\nSimilar artists\n")
					for _, s := range similar {
						fmt.Fprintf(out, "  %s  %s\n", s.ID, s.Name)
					}
				}
				return nil
			})
		},
	}
}

func newCookiesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cookies",
		Short: "Inspect or clear the persisted cookie jar",
	}

	dump := &cobra.Command{
		Use:   "dump",
		Short: "Print persisted cookies with values masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(_ context.Context, a *app.App) error {
				cookies := a.Cookies.DumpCookies()
				for i := range cookies {
					cookies[i].Value = mask(cookies[i].Value)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cookies)
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every persisted cookie",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(_ context.Context, a *app.App) error {
				if err := a.Cookies.ClearCookies(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Cookies cleared.")
				return nil
			})
		},
	}

	cmd.AddCommand(dump, clearCmd)
	return cmd
}

// requireSession restores the persisted session and fails when there is none.
func requireSession(ctx context.Context, a *app.App) error {
	if err := a.Session.CheckAuthStatus(ctx); err != nil {
		return fmt.Errorf("checking auth status: %w", err)
	}
	if _, ok := a.Session.State().(session.Authenticated); !ok {
		return errNotLoggedIn
	}
	return nil
}

func passwordOrPrompt(cmd *cobra.Command, password string) (string, error) {
	if password != "" {
		return password, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password is required")
	}
	return line, nil
}

func printAuth(w io.Writer, s session.AuthState) {
	switch s := s.(type) {
	case session.Authenticated:
		fmt.Fprintf(w, "Logged in as %s (%s)\n", s.Email, s.SessionID)
	case session.Unauthenticated:
		fmt.Fprintln(w, "Not logged in.")
	default:
		fmt.Fprintf(w, "Auth state: %s\n", session.StateName(s))
	}
}

func printFavorites(w io.Writer, entries []favorites.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No favorites yet.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tFAVORITED")
	for _, e := range entries {
		at := time.UnixMilli(e.FavoritedAt).UTC().Format(time.RFC3339)
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.ArtistID, displayName(e.Artist), at)
	}
	_ = tw.Flush()
}

func displayName(a artsy.Artist) string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

func lifespan(born, died *string) string {
	b, d := deref(born), deref(died)
	switch {
	case b == "" && d == "":
		return ""
	case d == "":
		return "b. " + b
	default:
		return b + " - " + d
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func mask(v string) string {
	if len(v) <= 4 {
		return strings.Repeat("*", len(v))
	}
	return v[:4] + strings.Repeat("*", len(v)-4)
}
