package main

import (
	"bufio"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atinyakov/NikahPrep/internal/autosave"
	"github.com/atinyakov/NikahPrep/internal/client"
	"github.com/atinyakov/NikahPrep/internal/client/storage"
	"github.com/atinyakov/NikahPrep/internal/form"
	"github.com/atinyakov/NikahPrep/internal/realtime"
	"github.com/atinyakov/NikahPrep/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultBaseURL = "http://localhost:8080"

// app holds the global flags and builds the API client on first use.
type app struct {
	baseURL     string
	sessionPath string
	caFile      string
	verbose     bool

	api   *client.API
	store *client.Store
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return storage.DefaultFile
	}
	return filepath.Join(dir, "nikahprep", storage.DefaultFile)
}

func (a *app) client() (*client.API, error) {
	if a.api != nil {
		return a.api, nil
	}
	sess, err := storage.Open(a.sessionPath)
	if err != nil {
		return nil, err
	}
	httpClient, err := storage.NewHTTPClient(a.caFile)
	if err != nil {
		return nil, err
	}
	log := zap.NewNop()
	if a.verbose {
		if log, err = zap.NewDevelopment(); err != nil {
			return nil, err
		}
	}

	baseURL := cmp.Or(a.baseURL, sess.BaseURL, defaultBaseURL)
	sess.BaseURL = baseURL
	a.api = client.NewAPI(baseURL, httpClient, sess, log)
	a.store = client.NewStore(a.api, 0)
	return a.api, nil
}

func (a *app) storeFor() (*client.Store, error) {
	if _, err := a.client(); err != nil {
		return nil, err
	}
	return a.store, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseValues turns field=value arguments into form input.
func parseValues(args []string) (form.Values, error) {
	values := make(form.Values, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected field=value, got %q", arg)
		}
		values[k] = v
	}
	return values, nil
}

// readPassword takes the password from the flag or the first line of stdin.
func readPassword(cmd *cobra.Command, flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (a *app) registerCmd() *cobra.Command {
	var email, name, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := a.client()
			if err != nil {
				return err
			}
			if password, err = readPassword(cmd, password); err != nil {
				return err
			}
			u, err := api.Register(cmd.Context(), email, name, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s. Signed in as %s\n", u.DisplayName, u.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&password, "password", "", "password (read from stdin when empty)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (a *app) loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := a.client()
			if err != nil {
				return err
			}
			if password, err = readPassword(cmd, password); err != nil {
				return err
			}
			u, err := api.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", u.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password (read from stdin when empty)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := a.client()
			if err != nil {
				return err
			}
			if err := api.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func (a *app) dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show the preparation overview",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.storeFor()
			if err != nil {
				return err
			}
			d, err := store.Dashboard(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Checklist   %d/%d (%s%%)\n", d.Checklist.Done, d.Checklist.Total, d.Checklist.Percent)
			fmt.Fprintf(w, "Modules     %d/%d (%s%%)\n", d.Modules.Done, d.Modules.Total, d.Modules.Percent)
			fmt.Fprintf(w, "Discussion  %d/%d (%s%%)\n", d.Discussion.Done, d.Discussion.Total, d.Discussion.Percent)
			fmt.Fprintf(w, "Budget      surplus %s\n", d.BudgetSurplus.StringFixed(2))
			fmt.Fprintf(w, "Mahr        %s, %s%% paid, %s remaining\n", d.Mahr.Status, d.Mahr.Progress, d.Mahr.Remaining.StringFixed(2))
			fmt.Fprintf(w, "Savings     %d/%d goals, %s%%\n", d.Savings.GoalsComplete, d.Savings.GoalsTotal, d.Savings.Progress)
			fmt.Fprintf(w, "Wedding     %s remaining\n", d.WeddingRemaining.StringFixed(2))
			if d.DaysUntilWedding != nil {
				fmt.Fprintf(w, "Wedding in  %d days\n", *d.DaysUntilWedding)
			}
			fmt.Fprintf(w, "Unread      %d\n", d.Unread)
			return nil
		},
	}
}

// recordCmd builds a "show|set" command pair for a single-row tracker.
func recordCmd[V any](a *app, use, short string,
	show func(*client.Store) func(ctx context.Context) (V, error),
	save func(*client.Store) func(ctx context.Context, values form.Values) (V, error),
) *cobra.Command {
	cmd := &cobra.Command{Use: use, Short: short}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.storeFor()
			if err != nil {
				return err
			}
			v, err := show(store)(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), v)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set field=value...",
		Short: "Save one or more fields",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseValues(args)
			if err != nil {
				return err
			}
			store, err := a.storeFor()
			if err != nil {
				return err
			}
			v, err := save(store)(cmd.Context(), values)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), v)
		},
	})
	return cmd
}

func (a *app) budgetCmd() *cobra.Command {
	return recordCmd(a, "budget", "Monthly household budget",
		func(s *client.Store) func(context.Context) (service.BudgetView, error) { return s.Budget },
		func(s *client.Store) func(context.Context, form.Values) (service.BudgetView, error) { return s.SaveBudget },
	)
}

func (a *app) mahrCmd() *cobra.Command {
	return recordCmd(a, "mahr", "Mahr amount and payments",
		func(s *client.Store) func(context.Context) (service.MahrView, error) { return s.Mahr },
		func(s *client.Store) func(context.Context, form.Values) (service.MahrView, error) { return s.SaveMahr },
	)
}

func (a *app) goalsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "goals", Short: "Savings goals"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List goals with progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.storeFor()
			if err != nil {
				return err
			}
			v, err := store.Goals(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, g := range v.Goals {
				fmt.Fprintf(w, "%-24s %s / %s (%s%%)\n", g.Name, g.Current.StringFixed(2), g.Goal.StringFixed(2), g.Progress.Progress)
			}
			fmt.Fprintf(w, "%d of %d goals complete, %s%% overall\n", v.Overview.GoalsComplete, v.Overview.GoalsTotal, v.Overview.Progress)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <name> field=value...",
		Short: "Create or update a goal",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseValues(args[1:])
			if err != nil {
				return err
			}
			store, err := a.storeFor()
			if err != nil {
				return err
			}
			v, err := store.SaveGoal(cmd.Context(), args[0], values)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), v)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.storeFor()
			if err != nil {
				return err
			}
			if err := store.DeleteGoal(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted goal %s\n", args[0])
			return nil
		},
	})
	return cmd
}

func (a *app) checklistCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "checklist", Short: "Preparation checklist"}
	printList := func(w io.Writer, v service.ChecklistView) {
		for _, g := range v.Categories {
			fmt.Fprintln(w, g.Category)
			for _, item := range g.Items {
				mark := " "
				if item.Completed {
					mark = "x"
				}
				fmt.Fprintf(w, "  [%s] %-12s %s\n", mark, item.ID, item.Title)
			}
		}
		fmt.Fprintf(w, "%d/%d done (%s%%)\n", v.Progress.Done, v.Progress.Total, v.Progress.Percent)
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Show the checklist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.storeFor()
			if err != nil {
				return err
			}
			v, err := store.Checklist(cmd.Context())
			if err != nil {
				return err
			}
			printList(cmd.OutOrStdout(), v)
			return nil
		},
	})
	for _, tc := range []struct {
		use       string
		short     string
		completed bool
	}{
		{"done <item-id>", "Mark an item completed", true},
		{"undo <item-id>", "Mark an item not completed", false},
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   tc.use,
			Short: tc.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := a.storeFor()
				if err != nil {
					return err
				}
				v, err := store.SetChecklistItem(cmd.Context(), args[0], tc.completed)
				if err != nil {
					return err
				}
				printList(cmd.OutOrStdout(), v)
				return nil
			},
		})
	}
	return cmd
}

func (a *app) notesCmd() *cobra.Command {
	var delay time.Duration
	cmd := &cobra.Command{Use: "notes", Short: "Personal notes on modules"}
	edit := &cobra.Command{
		Use:   "edit <module-slug>",
		Short: "Append lines from stdin to a module note, saving as you type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.storeFor()
			if err != nil {
				return err
			}
			editor, err := store.EditNote(cmd.Context(), args[0], delay)
			if err != nil {
				return err
			}
			errOut := cmd.ErrOrStderr()
			editor.OnChange(func(s autosave.State) {
				if s.Status == autosave.StatusError {
					fmt.Fprintf(errOut, "[%s: %v]\n", s.Status, s.Err)
					return
				}
				fmt.Fprintf(errOut, "[%s]\n", s.Status)
			})
			if text := editor.Text(); text != "" {
				fmt.Fprintln(cmd.OutOrStdout(), text)
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				text := editor.Text()
				if text != "" && !strings.HasSuffix(text, "\n") {
					text += "\n"
				}
				editor.Update(text + scanner.Text())
			}
			if err := scanner.Err(); err != nil {
				_ = editor.Close(cmd.Context())
				return err
			}
			return editor.Close(cmd.Context())
		},
	}
	edit.Flags().DurationVar(&delay, "delay", autosave.DefaultDelay, "idle time before saving")
	cmd.AddCommand(edit)
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write the finance CSV export to a file (- for stdout)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.client()
			if err != nil {
				return err
			}
			if args[0] == "-" {
				return api.ExportCSV(cmd.Context(), cmd.OutOrStdout())
			}
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := api.ExportCSV(cmd.Context(), f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", args[0])
			return nil
		},
	}
}

func (a *app) themeCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "theme <light|dark|system>",
		Short:     "Set the display theme",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"light", "dark", "system"},
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := a.client()
			if err != nil {
				return err
			}
			theme := args[0]
			u, err := api.UpdateProfile(cmd.Context(), service.ProfileUpdate{Theme: &theme})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Theme set to %s\n", u.Theme)
			return nil
		},
	}
}

func (a *app) watchCmd() *cobra.Command {
	var retry time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print change events as they happen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.storeFor()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			return store.Watch(cmd.Context(), retry, func(e realtime.Event) {
				if e.Op == realtime.OpResync {
					fmt.Fprintf(w, "%s resync\n", e.At.Local().Format(time.TimeOnly))
					return
				}
				fmt.Fprintf(w, "%s %s %s %s\n", e.At.Local().Format(time.TimeOnly), e.Op, e.Table, e.Key)
			})
		},
	}
	cmd.Flags().DurationVar(&retry, "retry", 5*time.Second, "delay before reconnecting")
	return cmd
}
