package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conorfennell/studynotes/internal/domain"
	"github.com/conorfennell/studynotes/internal/session"
	"github.com/conorfennell/studynotes/internal/sm2"
)

const gradeHelp = "Grade 0-5 (0 blackout, 3 hard but correct, 5 perfect), q to exit: "

func newStudyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "study",
		Short: "Review the cards that are due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			in := bufio.NewScanner(cmd.InOrStdin())

			view, err := a.svc.Start(ctx, a.cfg.User)
			if errors.Is(err, session.ErrEmptyDeck) {
				fmt.Fprintln(out, "No cards are due. Come back later!")
				return nil
			}
			if err != nil {
				return err
			}

			for view.Card != nil {
				fmt.Fprintf(out, "\n[%d/%d] %s\n", view.Progress.Position+1, view.Progress.Total, view.Card.Front)
				fmt.Fprint(out, "Press Enter to show the answer...")
				if !in.Scan() {
					return exitStudy(a, cmd, out)
				}
				fmt.Fprintf(out, "%s\n", view.Card.Back)

				q, quit := readGrade(in, out)
				if quit {
					return exitStudy(a, cmd, out)
				}
				res, err := a.svc.Grade(ctx, a.cfg.User, q)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Next review in %d day(s).\n", res.Card.IntervalDays)
				if res.Session != nil {
					printSession(out, res.Session)
					return nil
				}
				view = res.View
			}
			return nil
		},
	}
}

// readGrade prompts until a valid grade or a quit request. End of input
// counts as quitting.
func readGrade(in *bufio.Scanner, out io.Writer) (sm2.Quality, bool) {
	for {
		fmt.Fprint(out, gradeHelp)
		if !in.Scan() {
			return 0, true
		}
		text := strings.TrimSpace(in.Text())
		if strings.EqualFold(text, "q") {
			return 0, true
		}
		q, err := sm2.ParseQuality(text)
		if err == nil {
			return q, false
		}
		fmt.Fprintln(out, "Please enter a number from 0 to 5.")
	}
}

func exitStudy(a *app, cmd *cobra.Command, out io.Writer) error {
	rec, err := a.svc.Exit(cmd.Context(), a.cfg.User)
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Fprintln(out, "\nSession discarded.")
		return nil
	}
	printSession(out, rec)
	return nil
}

func printSession(out io.Writer, rec *domain.StudySession) {
	fmt.Fprintf(out, "\nSession complete: %d cards, %d correct, %d min.\n",
		rec.CardsStudied, rec.CorrectAnswers, rec.DurationMinutes)
}
