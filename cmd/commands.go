package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cinedex/pkg/diff"
	"cinedex/pkg/schema"
	"cinedex/pkg/sheet"
	"cinedex/pkg/source"
)

var orderCmd = &cobra.Command{
	Use:   "order <franchise> <title>",
	Short: "Print the recommended viewing order for a movie",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := setup(cmd)
		if err != nil {
			return err
		}
		vo, err := store.ViewingOrder(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%d prequels, by %s)\n", vo.Title, len(vo.Prequels), vo.Strategy)
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for i, c := range vo.Order {
			year := ""
			if c.Year > 0 {
				year = strconv.Itoa(c.Year)
			}
			fmt.Fprintf(tw, "%d.\t%s\t%s\n", i+1, c.Title, year)
		}
		return tw.Flush()
	},
}

var tiersCmd = &cobra.Command{
	Use:   "tiers <franchise>",
	Short: "Print a franchise tier list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := setup(cmd)
		if err != nil {
			return err
		}
		tiers, err := store.Tiers(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, t := range tiers {
			titles := make([]string, 0, len(t.Movies))
			for _, m := range t.Movies {
				titles = append(titles, m.Title)
			}
			fmt.Fprintf(tw, "%s\t%s\n", t.Tier, strings.Join(titles, ", "))
		}
		return tw.Flush()
	},
}

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search titles across every franchise",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, store, err := setup(cmd)
		if err != nil {
			return err
		}
		hits := store.Search(cmd.Context(), strings.Join(args, " "), searchLimit)
		if len(hits) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no matches")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, h := range hits {
			kind := "fuzzy"
			if h.Exact {
				kind = "match"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\n", h.Franchise, h.Title, kind, h.Score)
		}
		return tw.Flush()
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff <old-dir> <new-dir> <franchise>",
	Short: "Compare two snapshots of a franchise dataset",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		slug := strings.ToLower(args[2])
		oldM, err := readMovies(cmd.Context(), args[0], slug)
		if err != nil {
			return err
		}
		newM, err := readMovies(cmd.Context(), args[1], slug)
		if err != nil {
			return err
		}
		diff.Catalogs(slug, oldM, newM).Print(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum hits (default 20)")
}

func readMovies(ctx context.Context, dir, slug string) ([]schema.Movie, error) {
	rc, err := source.NewDir(dir).Open(ctx, slug+".csv")
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	movies, _, err := sheet.ParseMovies(rc, slug)
	return movies, err
}
