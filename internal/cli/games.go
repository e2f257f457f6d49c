package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"gamelog/pkg/domain"
	"gamelog/pkg/library"
)

type queryFlags struct {
	text     string
	platform string
	sort     string
}

func (q *queryFlags) register(f *pflag.FlagSet) {
	f.StringVarP(&q.text, "query", "q", "", "only titles containing this text")
	f.StringVarP(&q.platform, "platform", "p", "all", "PC, PS5, Xbox, Switch, Other or all")
	f.StringVarP(&q.sort, "sort", "s", string(library.DefaultSort), "one of "+joinSortKeys())
}

func (q queryFlags) query() library.Query {
	return library.Query{
		Text:     q.text,
		Platform: library.ParsePlatformFilter(q.platform),
		Sort:     library.ParseSortKey(q.sort),
	}
}

func joinSortKeys() string {
	keys := library.SortKeys()
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return strings.Join(out, ", ")
}

func newListCommand(e *env) *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List your finished games",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			games := e.library.View(q.query())
			writeHeader(e.out, user)
			writeGames(e.out, games)
			writeSummary(e.out, e.library.Summary())
			return nil
		},
	}
	q.register(cmd.Flags())
	return cmd
}

// gameFlags are the editable fields of a game record.
type gameFlags struct {
	title    string
	platform string
	date     string
	rating   int
	hours    int
	platinum bool
	review   string
	enhance  bool
}

func (g *gameFlags) register(f *pflag.FlagSet) {
	f.StringVar(&g.title, "title", "", "game title")
	f.StringVar(&g.platform, "platform", "", "PC, PS5, Xbox, Switch or Other")
	f.StringVar(&g.date, "date", "", "completion date, YYYY-MM-DD (default today)")
	f.IntVar(&g.rating, "rating", 0, "rating from 0 to 10")
	f.IntVar(&g.hours, "hours", 0, "hours played")
	f.BoolVar(&g.platinum, "platinum", false, "all achievements or trophies earned")
	f.StringVar(&g.review, "review", "", "short review")
	f.BoolVar(&g.enhance, "enhance", false, "polish the review before saving")
}

// apply copies every flag the user set onto game.
func (g gameFlags) apply(f *pflag.FlagSet, game *domain.Game) {
	if f.Changed("title") {
		game.Title = g.title
	}
	if f.Changed("platform") {
		game.Platform = domain.Platform(g.platform)
	}
	if f.Changed("date") {
		game.CompletionDate = g.date
	}
	if f.Changed("rating") {
		game.Rating = g.rating
	}
	if f.Changed("hours") {
		game.HoursPlayed = g.hours
	}
	if f.Changed("platinum") {
		game.IsPlatinum = g.platinum
	}
	if f.Changed("review") {
		game.Review = g.review
	}
}

func newAddCommand(e *env) *cobra.Command {
	var g gameFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Log a finished game",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := e.open(cmd.Context()); err != nil {
				return err
			}
			game := domain.Game{CompletionDate: domain.FormatDate(e.now())}
			g.apply(cmd.Flags(), &game)
			if g.enhance && strings.TrimSpace(game.Review) != "" {
				game.Review = e.remote.RewriteReview(cmd.Context(), game.Title, game.Rating, game.Review)
			}
			saved, err := e.library.Save(cmd.Context(), game)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Added %s (%s).\n", saved.Title, saved.ID)
			return nil
		},
	}
	g.register(cmd.Flags())
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("platform")
	return cmd
}

func newEditCommand(e *env) *cobra.Command {
	var g gameFlags
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a logged game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := e.open(cmd.Context()); err != nil {
				return err
			}
			game, ok := e.library.Find(args[0])
			if !ok {
				return fmt.Errorf("no game with id %s", args[0])
			}
			g.apply(cmd.Flags(), &game)
			if g.enhance && strings.TrimSpace(game.Review) != "" {
				game.Review = e.remote.RewriteReview(cmd.Context(), game.Title, game.Rating, game.Review)
			}
			saved, err := e.library.Save(cmd.Context(), game)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Updated %s.\n", saved.Title)
			return nil
		},
	}
	g.register(cmd.Flags())
	return cmd
}

func newRemoveCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Remove a game from your log",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := e.open(cmd.Context()); err != nil {
				return err
			}
			game, ok := e.library.Find(args[0])
			if !ok {
				return fmt.Errorf("no game with id %s", args[0])
			}
			if err := e.library.Delete(cmd.Context(), game.ID); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "Removed %s.\n", game.Title)
			return nil
		},
	}
}

func newStatsCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show totals over your whole log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			writeHeader(e.out, user)
			writeSummary(e.out, e.library.Summary())
			return nil
		},
	}
}

func newEnhanceCommand(e *env) *cobra.Command {
	var title, review string
	var rating int
	cmd := &cobra.Command{
		Use:   "enhance",
		Short: "Rewrite a review draft; prints the draft unchanged when rewriting is unavailable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := e.open(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(e.out, e.remote.RewriteReview(cmd.Context(), title, rating, review))
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "game title")
	cmd.Flags().IntVar(&rating, "rating", 0, "rating from 0 to 10")
	cmd.Flags().StringVar(&review, "review", "", "review draft")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("review")
	return cmd
}
