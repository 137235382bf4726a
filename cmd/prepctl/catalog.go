package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCatalogCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Browse topics and coding challenges",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "topics",
		Short: "List catalog topics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			topics, err := c.ListTopics(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TOPIC\tDIFFICULTIES\tQUESTIONS")
			for _, t := range topics {
				levels := make([]string, 0, len(t.Difficulties))
				total := 0
				for _, d := range t.Difficulties {
					levels = append(levels, string(d))
					total += t.QuestionCounts[d]
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\n", t.Name, strings.Join(levels, ","), total)
			}
			return tw.Flush()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "challenges",
		Short: "List coding challenges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			challenges, err := c.ListChallenges(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "DIFFICULTY\tTITLE")
			for _, ch := range challenges {
				fmt.Fprintf(tw, "%s\t%s\n", ch.Difficulty, ch.Title)
			}
			return tw.Flush()
		},
	})

	return cmd
}
