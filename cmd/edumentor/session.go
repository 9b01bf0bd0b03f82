package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	appI18n "github.com/pavelanni/edumentor/internal/i18n"
	"github.com/pavelanni/edumentor/internal/model"
	"github.com/pavelanni/edumentor/internal/store"
)

const defaultSessionName = "default"

// activeSession returns the session the CLI acts on. When create is set and no
// session is active, a new one is created and made active.
func (a *app) activeSession(cmd *cobra.Command, create bool) (model.Session, error) {
	sess, err := a.store.ActiveSession()
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.Session{}, fmt.Errorf("load active session: %w", err)
	}
	if !create {
		return model.Session{}, errors.New(appI18n.T(cmd.Context(), "NoActiveSession"))
	}
	return a.createSession(cmd, defaultSessionName)
}

func (a *app) createSession(cmd *cobra.Command, name string) (model.Session, error) {
	sess, err := a.store.CreateSession(name)
	if err != nil {
		return model.Session{}, fmt.Errorf("create session: %w", err)
	}
	if err := a.store.SetActiveSession(sess.ID); err != nil {
		return model.Session{}, fmt.Errorf("set active session: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), appI18n.Td(cmd.Context(), "SessionCreated", map[string]any{"Name": sess.Name}))
	return sess, nil
}

// resolve looks up a session by id or name.
func (a *app) resolve(cmd *cobra.Command, ref string) (model.Session, error) {
	sess, err := a.store.ResolveSession(ref)
	if errors.Is(err, store.ErrNotFound) {
		return model.Session{}, errors.New(appI18n.T(cmd.Context(), "SessionNotFound"))
	}
	return sess, err
}

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage study sessions",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "new [name]",
			Short: "Create a session and make it active",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cmd, false)
				if err != nil {
					return err
				}
				defer a.Close()
				name := defaultSessionName
				if len(args) == 1 {
					name = args[0]
				}
				_, err = a.createSession(cmd, name)
				return err
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List sessions, most recently used first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := newApp(cmd, false)
				if err != nil {
					return err
				}
				defer a.Close()
				list, err := a.store.ListSessions()
				if err != nil {
					return err
				}
				activeID, err := a.store.ActiveSessionID()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderSessions(cmd.Context(), list, activeID))
				return nil
			},
		},
		&cobra.Command{
			Use:   "use <id|name>",
			Short: "Make a session active",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cmd, false)
				if err != nil {
					return err
				}
				defer a.Close()
				sess, err := a.resolve(cmd, args[0])
				if err != nil {
					return err
				}
				if err := a.store.SetActiveSession(sess.ID); err != nil {
					return fmt.Errorf("set active session: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), appI18n.Td(cmd.Context(), "SessionActive", map[string]any{
					"Name": sess.Name, "ID": sess.ID,
				}))
				return nil
			},
		},
		&cobra.Command{
			Use:   "show [id|name]",
			Short: "Show a session's transcript, quiz and last result",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cmd, false)
				if err != nil {
					return err
				}
				defer a.Close()
				var sess model.Session
				if len(args) == 1 {
					sess, err = a.resolve(cmd, args[0])
				} else {
					sess, err = a.activeSession(cmd, false)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderSession(cmd.Context(), sess))
				return nil
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Clear the active session's transcript, knowledge base and quiz",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := newApp(cmd, false)
				if err != nil {
					return err
				}
				defer a.Close()
				sess, err := a.activeSession(cmd, false)
				if err != nil {
					return err
				}
				sess = a.tutor.Reset(sess)
				if err := a.store.SaveSession(&sess); err != nil {
					return fmt.Errorf("save session: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), appI18n.T(cmd.Context(), "SessionReset"))
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <id|name>",
			Short: "Delete a session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := newApp(cmd, false)
				if err != nil {
					return err
				}
				defer a.Close()
				sess, err := a.resolve(cmd, args[0])
				if err != nil {
					return err
				}
				if err := a.store.DeleteSession(sess.ID); err != nil {
					return fmt.Errorf("delete session: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), appI18n.T(cmd.Context(), "SessionDeleted"))
				return nil
			},
		},
	)
	return cmd
}
