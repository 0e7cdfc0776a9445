package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"bookloom/internal/admin"
	"bookloom/internal/api"
)

func newBookCommand(ctx *commandContext) *cobra.Command {
	bookCmd := &cobra.Command{
		Use:   "book",
		Short: "Create and inspect books",
	}
	bookCmd.AddCommand(newBookAddCommand(ctx))
	bookCmd.AddCommand(newBookListCommand(ctx))
	bookCmd.AddCommand(newBookShowCommand(ctx))
	bookCmd.AddCommand(newBookNarrateCommand(ctx))
	bookCmd.AddCommand(newBookDeleteCommand(ctx))
	return bookCmd
}

func newBookAddCommand(ctx *commandContext) *cobra.Command {
	var (
		req    admin.BookRequest
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a book and queue its text generation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAdmin(cmd.Context(), func(svc *admin.Service) error {
				book, job, err := svc.EnqueueBook(cmd.Context(), req)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, map[string]any{"book": api.FromBook(book), "job": api.FromJob(job)})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Book %s queued (text job %s)\n", book.ID, job.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Title, "title", "", "Book title")
	cmd.Flags().StringVar(&req.Premise, "premise", "", "One-paragraph premise")
	cmd.Flags().StringVar(&req.Audience, "audience", "", "Intended readers, for example \"children 6-8\"")
	cmd.Flags().IntVar(&req.Chapters, "chapters", 8, "Number of chapters")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("premise")
	return cmd
}

func newBookListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List books",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAdmin(cmd.Context(), func(svc *admin.Service) error {
				books, err := svc.Books(cmd.Context())
				if err != nil {
					return err
				}
				items := api.FromBooks(books)
				if asJSON {
					if items == nil {
						items = []api.BookItem{}
					}
					return writeJSON(cmd, items)
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No books")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, b := range items {
					rows = append(rows, []string{
						b.ID, truncate(b.Title, 40), strconv.Itoa(b.ChapterCount),
						orDash(b.Status), orDash(b.AudioStatus), displayTime(b.CreatedAt),
					})
				}
				fmt.Fprint(out, renderTable(out,
					[]string{"ID", "Title", "Chapters", "Text", "Audio", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newBookShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <book-id>",
		Short: "Show a book with its chapters, narration, and jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAdmin(cmd.Context(), func(svc *admin.Service) error {
				detail, err := svc.Describe(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, bookDetailJSON(detail))
				}
				printBookDetail(cmd.OutOrStdout(), detail)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func newBookNarrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "narrate <book-id>",
		Short: "Queue narration for a book whose text is complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAdmin(cmd.Context(), func(svc *admin.Service) error {
				job, created, err := svc.EnqueueNarration(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !created {
					fmt.Fprintf(out, "Narration job %s already exists (%s)\n", job.ID, job.Status)
					return nil
				}
				fmt.Fprintf(out, "Narration queued (audio job %s)\n", job.ID)
				return nil
			})
		},
	}
}

func newBookDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <book-id>",
		Short: "Delete a book, its jobs, and its artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAdmin(cmd.Context(), func(svc *admin.Service) error {
				if err := svc.DeleteBook(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Book %s deleted\n", args[0])
				return nil
			})
		},
	}
}
