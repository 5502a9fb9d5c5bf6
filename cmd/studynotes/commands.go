package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/conorfennell/studynotes/internal/config"
	"github.com/conorfennell/studynotes/internal/generator"
	"github.com/conorfennell/studynotes/internal/study"
	"github.com/conorfennell/studynotes/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := &http.Server{
				Addr:              a.cfg.Server.Addr,
				Handler:           web.NewServer(a.svc, a.cfg.User, a.logger),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("Starting server", "addr", srv.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("could not start server: %w", err)
			case <-cmd.Context().Done():
			}
			a.logger.Info("Shutting down server")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
			if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("addr", config.Default().Server.Addr, "Address to listen on")
	return cmd
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Import notes and inline flashcards from all sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := a.svc.Sync(cmd.Context(), a.cfg.User)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SOURCE\tNOTES +/~/-\tCARDS +/-\tERRORS")
			for _, r := range results {
				fmt.Fprintf(w, "%s\t%d/%d/%d\t%d/%d\t%d\n", r.Path,
					r.NotesAdded, r.NotesUpdated, r.NotesDeleted, r.CardsAdded, r.CardsDeleted, r.Errors)
			}
			w.Flush()
			return err
		},
	}
}

func newSourceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage note sources",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "add <path/or/url.git>",
			Short: "Add a local directory or git repository",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				src, err := a.svc.AddSource(cmd.Context(), a.cfg.User, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s source %d: %s\n", src.Type, src.ID, src.Path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List sources",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				sources, err := a.svc.Sources(cmd.Context(), a.cfg.User)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tTYPE\tPATH\tLAST SCANNED")
				for _, s := range sources {
					scanned := "never"
					if s.LastScanned != nil {
						scanned = s.LastScanned.Local().Format(time.DateTime)
					}
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.ID, s.Type, s.Path, scanned)
				}
				return w.Flush()
			},
		},
		&cobra.Command{
			Use:   "remove <id>",
			Short: "Remove a source and everything imported from it",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid source ID %q", args[0])
				}
				return a.svc.RemoveSource(cmd.Context(), a.cfg.User, id)
			},
		},
	)
	return cmd
}

func newNoteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "note",
		Short: "Manage notes",
	}

	var (
		title string
		file  string
		tags  []string
	)
	add := &cobra.Command{
		Use:   "add [content]",
		Short: "Add a note from an argument or a file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var content string
			switch {
			case file != "":
				b, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				content = string(b)
			case len(args) == 1:
				content = args[0]
			default:
				return errors.New("note content is required, as an argument or with --file")
			}
			note, err := a.svc.AddNote(cmd.Context(), a.cfg.User, study.NoteInput{
				Title:   title,
				Content: strings.TrimSpace(content),
				Tags:    tags,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added note %s (difficulty %d, tags %s)\n",
				note.ID, note.DifficultyLevel, strings.Join(note.Tags, ", "))
			return nil
		},
	}
	add.Flags().StringVar(&title, "title", "", "Note title")
	add.Flags().StringVar(&file, "file", "", "Read the note content from a file")
	add.Flags().StringSliceVar(&tags, "tags", nil, "Comma separated tags")

	list := &cobra.Command{
		Use:   "list",
		Short: "List notes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			notes, err := a.svc.Notes(cmd.Context(), a.cfg.User)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tDIFFICULTY\tSTUDIED\tTAGS")
			for _, n := range notes {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", n.ID, n.Title, n.DifficultyLevel, n.StudyCount, strings.Join(n.Tags, ","))
			}
			return w.Flush()
		},
	}

	cmd.AddCommand(add, list)
	return cmd
}

func newGenerateCmd(a *app) *cobra.Command {
	var (
		count      int
		difficulty string
	)
	cmd := &cobra.Command{
		Use:   "generate <note-id>",
		Short: "Generate flashcards from a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cards, err := a.svc.GenerateFlashcards(cmd.Context(), a.cfg.User, args[0], count, difficulty)
			if err != nil {
				return err
			}
			for _, c := range cards {
				fmt.Fprintf(cmd.OutOrStdout(), "Q: %s\nA: %s\n\n", c.Front, c.Back)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %d flashcards.\n", len(cards))
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", generator.DefaultCount, "Number of cards to generate")
	cmd.Flags().StringVar(&difficulty, "difficulty", generator.Medium, "easy, medium or hard")
	return cmd
}

func newSummarizeCmd(a *app) *cobra.Command {
	var (
		style     string
		maxLength int
	)
	cmd := &cobra.Command{
		Use:   "summarize <note-id>",
		Short: "Summarize a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := a.svc.Summarize(cmd.Context(), a.cfg.User, args[0], style, maxLength)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sum.SummaryText)
			return nil
		},
	}
	cmd.Flags().StringVar(&style, "style", generator.StyleBullet, "bullet, paragraph or outline")
	cmd.Flags().IntVar(&maxLength, "max-length", generator.DefaultMaxLength, "Maximum summary length in characters")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show study statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.svc.Stats(cmd.Context(), a.cfg.User)
			if err != nil {
				return err
			}
			due, err := a.svc.CountDue(cmd.Context(), a.cfg.User)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Notes\t%d\n", st.TotalNotes)
			fmt.Fprintf(w, "Flashcards\t%d\n", st.TotalFlashcards)
			fmt.Fprintf(w, "Due now\t%d\n", due)
			fmt.Fprintf(w, "Study time\t%d min\n", st.TotalStudyTime)
			fmt.Fprintf(w, "Active days (30d)\t%d\n", st.StreakDays)
			fmt.Fprintf(w, "Average difficulty\t%.2f\n", st.AverageDifficulty)
			return w.Flush()
		},
	}
}

func newSessionsCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent study sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := a.svc.RecentSessions(cmd.Context(), a.cfg.User)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(sessions)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "WHEN\tTYPE\tMINUTES\tCARDS\tCORRECT")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", s.CreatedAt.Local().Format(time.DateTime),
					s.SessionType, s.DurationMinutes, s.CardsStudied, s.CorrectAnswers)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
