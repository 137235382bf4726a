package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/terra-clan/interview-engine/internal/models"
	"github.com/terra-clan/interview-engine/pkg/client"
)

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session", "s"},
		Short:   "Manage practice sessions",
	}

	cmd.AddCommand(newSessionsListCmd(opts))
	cmd.AddCommand(newSessionsCreateCmd(opts))
	cmd.AddCommand(newSessionsGetCmd(opts))
	cmd.AddCommand(newSessionsSubmitCmd(opts))
	cmd.AddCommand(newSessionsDeleteCmd(opts))
	return cmd
}

func newSessionsListCmd(opts *rootOptions) *cobra.Command {
	var list client.ListOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List your sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			sessions, err := c.ListSessions(cmd.Context(), list)
			if err != nil {
				return err
			}
			return printSessionTable(cmd.OutOrStdout(), sessions)
		},
	}

	cmd.Flags().StringVar(&list.Status, "status", "", "filter by status (in_progress, completed)")
	cmd.Flags().StringVar(&list.Topic, "topic", "", "filter by topic")
	cmd.Flags().IntVar(&list.Limit, "limit", 0, "maximum number of sessions")
	cmd.Flags().IntVar(&list.Offset, "offset", 0, "number of sessions to skip")
	return cmd
}

func newSessionsCreateCmd(opts *rootOptions) *cobra.Command {
	var req models.CreateSessionRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a practice session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			session, err := c.CreateSession(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printSession(cmd.OutOrStdout(), session)
		},
	}

	cmd.Flags().StringVar(&req.Topic, "topic", "", "session topic, e.g. JavaScript")
	cmd.Flags().StringVar(&req.Difficulty, "difficulty", string(models.DifficultyBeginner), "beginner, intermediate or advanced")
	cmd.Flags().StringVar(&req.Title, "title", "", "optional session title")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}

func newSessionsGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a session with its questions and scores",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			session, err := c.GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printSession(cmd.OutOrStdout(), session)
		},
	}
}

func newSessionsSubmitCmd(opts *rootOptions) *cobra.Command {
	var (
		answers      []string
		answersFile  string
		solutionFile string
		language     string
	)

	cmd := &cobra.Command{
		Use:   "submit <id>",
		Short: "Submit answers for scoring",
		Long: "Submit answers in question order. Use --answer once per question (an empty value skips it),\n" +
			"or --answers-file with a YAML or JSON list where null entries are skipped.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := models.SubmitRequest{Language: language}

			switch {
			case answersFile != "":
				loaded, err := readAnswersFile(answersFile)
				if err != nil {
					return err
				}
				req.Answers = loaded
			default:
				for _, a := range answers {
					req.Answers = append(req.Answers, &a)
				}
			}

			if solutionFile != "" {
				data, err := os.ReadFile(solutionFile)
				if err != nil {
					return fmt.Errorf("failed to read solution: %w", err)
				}
				solution := string(data)
				req.CodingSolution = &solution
			}

			c, err := opts.client()
			if err != nil {
				return err
			}
			session, err := c.SubmitAnswers(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			return printSession(cmd.OutOrStdout(), session)
		},
	}

	cmd.Flags().StringArrayVar(&answers, "answer", nil, "answer for the next question (repeatable)")
	cmd.Flags().StringVar(&answersFile, "answers-file", "", "YAML or JSON list of answers")
	cmd.Flags().StringVar(&solutionFile, "solution-file", "", "file containing the coding challenge solution")
	cmd.Flags().StringVar(&language, "language", "", "solution language (python, javascript, go)")
	cmd.MarkFlagsMutuallyExclusive("answer", "answers-file")
	return cmd
}

func newSessionsDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.DeleteSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s deleted\n", args[0])
			return nil
		},
	}
}

// readAnswersFile parses a YAML (or JSON) sequence of answers. Null entries stay nil.
func readAnswersFile(path string) ([]*string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read answers: %w", err)
	}

	var answers []*string
	if err := yaml.Unmarshal(data, &answers); err != nil {
		return nil, fmt.Errorf("answers file must be a list of strings: %w", err)
	}
	return answers, nil
}

func printSession(w io.Writer, s *models.Session) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func printSessionTable(w io.Writer, sessions []*models.Session) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTOPIC\tDIFFICULTY\tSTATUS\tSCORE\tCREATED")
	for _, s := range sessions {
		score := "-"
		if s.IsCompleted() {
			score = fmt.Sprintf("%d%%", s.OverallScore)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.Topic, s.Difficulty, s.Status, score, s.CreatedAt.Format("2006-01-02 15:04"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w, "no sessions")
	}
	return nil
}
