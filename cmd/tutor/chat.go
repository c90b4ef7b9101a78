package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/tutor/internal/client"
	appI18n "github.com/pavelanni/tutor/internal/i18n"
	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/session"
	"github.com/pavelanni/tutor/internal/store"
)

const defaultServerURL = "http://localhost:8080"

// addStateFlags registers the flags every client command shares.
func addStateFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("state", "tutor-state.db", "Local state file")
	f.String("log-level", "warn", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the tutor in the terminal",
		RunE:  runChat,
	}
	addStateFlags(cmd)
	f := cmd.Flags()
	f.String("server", "", "Tutor server URL (saved as preference)")
	f.StringP("model", "m", "", "Model identifier (saved as preference; empty = server default)")
	f.StringP("lang", "l", "", "Interface language, en or es (saved as preference)")
	f.String("api-key", "", "API key sent to servers without their own (or set TUTOR_API_KEY)")
	f.Duration("timeout", 90*time.Second, "HTTP timeout for one turn")
	return cmd
}

func resetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the conversation and evaluation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)
			s, st, err := openState(v)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx, err := clientContext(cmd.Context(), st.Prefs.Load().Lang)
			if err != nil {
				return err
			}
			if err := session.New(st, nil, "").Reset(); err != nil {
				return fmt.Errorf("reset: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), appI18n.T(ctx, "ChatReset"))
			return nil
		},
	}
	addStateFlags(cmd)
	return cmd
}

func openState(v *viper.Viper) (*store.Store, *store.State, error) {
	s, err := store.New(v.GetString("state"))
	if err != nil {
		return nil, nil, fmt.Errorf("open local state: %w", err)
	}
	return s, store.NewState(s), nil
}

func clientContext(ctx context.Context, lang string) (context.Context, error) {
	if lang == "" {
		lang = "es"
	}
	if err := appI18n.Init(lang); err != nil {
		return nil, fmt.Errorf("init i18n: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return appI18n.Context(ctx, lang), nil
}

// applyPrefFlags saves any preference given on the command line.
func applyPrefFlags(v *viper.Viper, st *store.State) (model.UIPrefs, error) {
	prefs := st.Prefs.Load()
	changed := false
	if s := strings.TrimSpace(v.GetString("server")); s != "" && s != prefs.ServerURL {
		prefs.ServerURL, changed = s, true
	}
	if m := strings.TrimSpace(v.GetString("model")); m != "" && m != prefs.Model {
		prefs.Model, changed = m, true
	}
	if l := strings.TrimSpace(v.GetString("lang")); l != "" && l != prefs.Lang {
		prefs.Lang, changed = l, true
	}
	if changed {
		if err := st.Prefs.Save(prefs); err != nil {
			return prefs, err
		}
	}
	if prefs.ServerURL == "" {
		prefs.ServerURL = defaultServerURL
	}
	return prefs, nil
}

func runChat(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	s, st, err := openState(v)
	if err != nil {
		return err
	}
	defer s.Close()

	prefs, err := applyPrefFlags(v, st)
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	ctx, err := clientContext(cmd.Context(), prefs.Lang)
	if err != nil {
		return err
	}

	tutor := client.New(prefs.ServerURL, v.GetDuration("timeout"))
	sess := session.New(st, tutor, v.GetString("api-key"))
	return runREPL(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), sess, st.Student.Load().Name)
}

// runREPL reads user lines until EOF or /quit.
func runREPL(ctx context.Context, in io.Reader, out io.Writer, sess *session.Session, studentName string) error {
	fmt.Fprintln(out, "== "+appI18n.T(ctx, "AppTitle")+" ==")
	fmt.Fprintln(out, appI18n.Td(ctx, "ChatWelcome", map[string]any{"Name": studentName}))
	if msgs := sess.Messages(); len(msgs) > 0 {
		fmt.Fprintln(out, appI18n.Tp(ctx, "MessagesInHistory", len(msgs)))
		for _, m := range msgs {
			printMessage(ctx, out, m)
		}
	}

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/help":
			fmt.Fprintln(out, appI18n.T(ctx, "ChatHelp"))
			continue
		case "/eval":
			printEvaluation(ctx, out, sess.Evaluation())
			continue
		case "/reset":
			if err := sess.Reset(); err != nil {
				return fmt.Errorf("reset: %w", err)
			}
			fmt.Fprintln(out, appI18n.T(ctx, "ChatReset"))
			continue
		}

		var reply model.ChatMessage
		var err error
		if line == "/start" {
			reply, err = sess.Start(ctx)
		} else {
			reply, err = sess.Send(ctx, line)
		}
		switch {
		case errors.Is(err, session.ErrBusy):
			fmt.Fprintln(out, appI18n.T(ctx, "ChatBusy"))
		case err != nil:
			fmt.Fprintln(out, appI18n.Td(ctx, "ChatError", map[string]any{"Error": err.Error()}))
		default:
			printMessage(ctx, out, reply)
		}
	}
}

func printMessage(ctx context.Context, out io.Writer, m model.ChatMessage) {
	label := appI18n.T(ctx, "YouLabel")
	if m.Role == model.RoleAssistant {
		label = appI18n.T(ctx, "TutorLabel")
	}
	fmt.Fprintf(out, "%s: %s\n", label, m.Content)
}

func printEvaluation(ctx context.Context, out io.Writer, e *model.Evaluation) {
	fmt.Fprintln(out, "== "+appI18n.T(ctx, "EvalHeader")+" ==")
	if e == nil {
		fmt.Fprintln(out, appI18n.T(ctx, "EvalNone"))
		return
	}
	fmt.Fprintln(out, appI18n.Td(ctx, "EvalStatus", map[string]any{"Status": string(e.Status)}))
	fmt.Fprintln(out, appI18n.Td(ctx, "EvalScore", map[string]any{"Score": e.Score}))
	if len(e.WeakConcepts) > 0 {
		fmt.Fprintln(out, appI18n.Td(ctx, "EvalWeak", map[string]any{"List": strings.Join(e.WeakConcepts, ", ")}))
	}
	if len(e.NextActions) > 0 {
		fmt.Fprintln(out, appI18n.Td(ctx, "EvalNext", map[string]any{"List": strings.Join(e.NextActions, "; ")}))
	}
	if e.Summary != nil && *e.Summary != "" {
		fmt.Fprintln(out, appI18n.Td(ctx, "EvalSummary", map[string]any{"Summary": *e.Summary}))
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Edit the task, student profile and tutor prompt",
	}
	addStateFlags(cmd)

	task := &cobra.Command{
		Use:   "task",
		Short: "Set task fields",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return editCell(cmd, func(st *store.State) (string, error) {
				t := st.Task.Load()
				setIfChanged(cmd, "topic", &t.Topic)
				setIfChanged(cmd, "objective", &t.Objective)
				setIfChanged(cmd, "subject", &t.Subject)
				setIfChanged(cmd, "grade", &t.Grade)
				setIfChanged(cmd, "duration", &t.DurationMin)
				return st.Task.Key(), st.Task.Save(t)
			})
		},
	}
	tf := task.Flags()
	tf.String("topic", "", "Task topic")
	tf.String("objective", "", "Learning objective")
	tf.String("subject", "", "Subject")
	tf.String("grade", "", "Grade level")
	tf.String("duration", "", "Duration in minutes")

	student := &cobra.Command{
		Use:   "student",
		Short: "Set student profile fields",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return editCell(cmd, func(st *store.State) (string, error) {
				p := st.Student.Load()
				setIfChanged(cmd, "name", &p.Name)
				setIfChanged(cmd, "age", &p.Age)
				setIfChanged(cmd, "course", &p.Course)
				setIfChanged(cmd, "strengths", &p.Strengths)
				setIfChanged(cmd, "challenges", &p.Challenges)
				return st.Student.Key(), st.Student.Save(p)
			})
		},
	}
	sf := student.Flags()
	sf.String("name", "", "Student name")
	sf.String("age", "", "Student age")
	sf.String("course", "", "Course")
	sf.String("strengths", "", "Strengths")
	sf.String("challenges", "", "Challenges")

	prompt := &cobra.Command{
		Use:   "prompt TEXT",
		Short: "Set the teacher's system prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editCell(cmd, func(st *store.State) (string, error) {
				return st.SystemPrompt.Key(), st.SystemPrompt.Save(args[0])
			})
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the current configuration as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			setupLogging(cmd)
			s, st, err := openState(viperForCmd(cmd))
			if err != nil {
				return err
			}
			defer s.Close()
			return showState(cmd.OutOrStdout(), s, st)
		},
	}

	cmd.AddCommand(task, student, prompt, show)
	return cmd
}

func setIfChanged(cmd *cobra.Command, flag string, dst *string) {
	if cmd.Flags().Changed(flag) {
		*dst, _ = cmd.Flags().GetString(flag)
	}
}

func editCell(cmd *cobra.Command, edit func(st *store.State) (string, error)) error {
	setupLogging(cmd)
	s, st, err := openState(viperForCmd(cmd))
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, err := clientContext(cmd.Context(), st.Prefs.Load().Lang)
	if err != nil {
		return err
	}
	key, err := edit(st)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), appI18n.Td(ctx, "ConfigSaved", map[string]any{"Key": key}))
	return nil
}

func showState(out io.Writer, s *store.Store, st *store.State) error {
	keys, err := s.Keys()
	if err != nil {
		return fmt.Errorf("list stored keys: %w", err)
	}
	if keys == nil {
		keys = []string{}
	}
	view := struct {
		StoredKeys   []string             `json:"storedKeys"`
		Task         model.TaskConfig     `json:"taskConfig"`
		Student      model.StudentProfile `json:"student"`
		SystemPrompt string               `json:"systemPrompt"`
		Prefs        model.UIPrefs        `json:"uiPrefs"`
		Messages     int                  `json:"messages"`
		Evaluation   *model.Evaluation    `json:"evaluation"`
	}{
		StoredKeys:   keys,
		Task:         st.Task.Load(),
		Student:      st.Student.Load(),
		SystemPrompt: st.SystemPrompt.Load(),
		Prefs:        st.Prefs.Load(),
		Messages:     len(st.Messages.Load()),
		Evaluation:   st.Evaluation.Load(),
	}
	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
