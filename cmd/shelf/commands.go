package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter/tw"
	"github.com/urfave/cli/v3"

	"github.com/starford/shelf/internal"
	"github.com/starford/shelf/internal/apperr"
	"github.com/starford/shelf/internal/backup"
	"github.com/starford/shelf/internal/checksum"
	"github.com/starford/shelf/internal/importer"
	"github.com/starford/shelf/internal/models"
	"github.com/starford/shelf/internal/query"
	"github.com/starford/shelf/internal/stats"
	"github.com/starford/shelf/internal/storage"
)

// withApp opens the catalog for a one-shot command, logging to stderr.
func withApp(ctx context.Context, cmd *cli.Command, fn func(context.Context, *internal.App, *printer) error) error {
	p, err := newPrinter(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	app, err := internal.Open(ctx,
		internal.WithConfig(cfg),
		internal.WithVersion(version),
		internal.WithLogOutput(os.Stderr),
	)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app, p)
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Add a book",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "Book title", Required: true},
			&cli.StringFlag{Name: "author", Aliases: []string{"a"}, Usage: "Author", Required: true},
			&cli.IntFlag{Name: "year", Aliases: []string{"y"}, Usage: "Publication year", Required: true},
			&cli.StringFlag{Name: "genre", Aliases: []string{"g"}, Usage: "Genre, matched case-insensitively against the known genres"},
			&cli.BoolFlag{Name: "read", Usage: "Mark the book as read"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, func(ctx context.Context, app *internal.App, p *printer) error {
				wctx, cancel := app.WriteContext(ctx)
				defer cancel()

				b, err := app.Store.AddBook(wctx, models.NewBook{
					Title:           cmd.String("title"),
					Author:          cmd.String("author"),
					PublicationYear: int(cmd.Int("year")),
					Genre:           cmd.String("genre"),
					ReadStatus:      cmd.Bool("read"),
				})
				if err != nil {
					return saveError(err, app)
				}
				return p.message(b, "added %q by %s (%s)", b.Title, b.Author, b.ID)
			})
		},
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List books in insertion order",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "read", Usage: "Only read books"},
			&cli.BoolFlag{Name: "unread", Usage: "Only unread books"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Bool("read") && cmd.Bool("unread") {
				return fmt.Errorf("--read and --unread are mutually exclusive")
			}
			return withApp(ctx, cmd, func(_ context.Context, app *internal.App, p *printer) error {
				books := app.Store.Books()
				positions := make([]int, 0, len(books))
				filtered := make([]models.Book, 0, len(books))
				for i, b := range books {
					if cmd.Bool("read") && !b.ReadStatus || cmd.Bool("unread") && b.ReadStatus {
						continue
					}
					positions = append(positions, i+1)
					filtered = append(filtered, b)
				}
				return p.print(filtered, booksTable(filtered, positions))
			})
		},
	}
}

func removeCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Aliases:   []string{"rm"},
		Usage:     "Remove a book by id or list position",
		ArgsUsage: "<id|position>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ref, err := singleArg(cmd)
			if err != nil {
				return err
			}
			return withApp(ctx, cmd, func(ctx context.Context, app *internal.App, p *printer) error {
				id, err := resolveBook(app.Store.Books(), ref)
				if err != nil {
					return err
				}
				wctx, cancel := app.WriteContext(ctx)
				defer cancel()

				b, err := app.Store.RemoveBook(wctx, id)
				if err != nil {
					return saveError(err, app)
				}
				return p.message(b, "removed %q by %s", b.Title, b.Author)
			})
		},
	}
}

func readCommand(name string, read bool) *cli.Command {
	usage := "Mark a book as read"
	if !read {
		usage = "Mark a book as unread"
	}
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<id|position>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ref, err := singleArg(cmd)
			if err != nil {
				return err
			}
			return withApp(ctx, cmd, func(ctx context.Context, app *internal.App, p *printer) error {
				id, err := resolveBook(app.Store.Books(), ref)
				if err != nil {
					return err
				}
				wctx, cancel := app.WriteContext(ctx)
				defer cancel()

				b, err := app.Store.SetReadStatus(wctx, id, read)
				if err != nil {
					return saveError(err, app)
				}
				return p.message(b, "%q marked %s", b.Title, readLabel(b.ReadStatus))
			})
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search books by title, author or genre, or full text with --field all",
		ArgsUsage: "<term>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "field", Aliases: []string{"f"}, Usage: "title, author, genre or all", Value: string(query.FieldTitle)},
			&cli.IntFlag{Name: "limit", Usage: "Maximum full-text results", Value: 20},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			term := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
			if term == "" {
				return fmt.Errorf("search term is required")
			}
			return withApp(ctx, cmd, func(_ context.Context, app *internal.App, p *printer) error {
				if strings.EqualFold(cmd.String("field"), "all") {
					hits, err := app.DB.Search(term, int(cmd.Int("limit")))
					if err != nil {
						return err
					}
					rows := make([][]string, len(hits))
					for i, h := range hits {
						rows[i] = []string{shortID(h.ID), h.Title, h.Author, h.Genre}
					}
					return p.print(hits, table{
						headers: []string{"ID", "Title", "Author", "Genre"},
						rows:    rows,
					})
				}

				field, err := query.ParseField(cmd.String("field"))
				if err != nil {
					return err
				}
				books, err := app.Store.Search(term, field)
				if err != nil {
					return err
				}
				return p.print(books, booksTable(books, nil))
			})
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show reading statistics",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, func(_ context.Context, app *internal.App, p *printer) error {
				s := app.Store.Stats()
				return p.print(s, statsTables(s)...)
			})
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import books from a YAML, JSON or Markdown file",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Usage: "yaml, json or markdown (default: from the file extension)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path, err := singleArg(cmd)
			if err != nil {
				return err
			}
			var f importer.Format
			if s := cmd.String("format"); s != "" {
				if f, err = importer.ParseFormat(s); err != nil {
					return err
				}
			}
			return withApp(ctx, cmd, func(ctx context.Context, app *internal.App, p *printer) error {
				rep, err := importer.ImportFile(ctx, app.Store, path, f, app.Logger)
				if err != nil && len(rep.Added) == 0 && len(rep.Failed) == 0 {
					return err
				}
				if perr := p.print(rep, importTables(rep)...); perr != nil {
					return perr
				}
				return err
			})
		},
	}
}

func backupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Snapshot the catalog document into the backup directory",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "list", Aliases: []string{"l"}, Usage: "List existing snapshots instead"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, func(ctx context.Context, app *internal.App, p *printer) error {
				snap, err := app.Snapshotter()
				if err != nil {
					return err
				}
				if cmd.Bool("list") {
					list, err := snap.List()
					if err != nil {
						return err
					}
					return p.print(list, snapshotsTable(list))
				}

				res, err := snap.Snapshot(ctx)
				if err != nil {
					return err
				}
				return p.message(res, "%s", backupLine(res))
			})
		},
	}
}

func singleArg(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", fmt.Errorf("%s: expected one argument %s", cmd.Name, cmd.ArgsUsage)
	}
	return cmd.Args().First(), nil
}

// resolveBook maps a 1-based list position or an id onto a book id.
func resolveBook(books []models.Book, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(books) {
			return "", fmt.Errorf("%w: no book at position %d (catalog has %d)", apperr.ErrNotFound, n, len(books))
		}
		return books[n-1].ID, nil
	}
	for _, b := range books {
		if b.ID == ref {
			return ref, nil
		}
	}
	// Unique id prefixes are accepted too.
	var match string
	for _, b := range books {
		if strings.HasPrefix(b.ID, ref) {
			if match != "" {
				return "", fmt.Errorf("ambiguous id prefix %q", ref)
			}
			match = b.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %q", apperr.ErrNotFound, ref)
	}
	return match, nil
}

// saveError annotates a write failure: the change is kept in memory only
// until the process exits.
func saveError(err error, app *internal.App) error {
	if app.Store.Dirty() {
		return fmt.Errorf("%w (change not saved to %s)", err, app.Doc.Path())
	}
	return err
}

func readLabel(read bool) string {
	if read {
		return "read"
	}
	return "unread"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// booksTable renders books with their list positions; nil positions omits
// the column.
func booksTable(books []models.Book, positions []int) table {
	t := table{
		headers: []string{"ID", "Title", "Author", "Year", "Genre", "Status"},
		align:   []tw.Align{tw.AlignLeft, tw.AlignLeft, tw.AlignLeft, tw.AlignRight, tw.AlignLeft, tw.AlignLeft},
	}
	if positions != nil {
		t.headers = append([]string{"#"}, t.headers...)
		t.align = append([]tw.Align{tw.AlignRight}, t.align...)
	}
	for i, b := range books {
		row := []string{shortID(b.ID), b.Title, b.Author, strconv.Itoa(b.PublicationYear), b.Genre, readLabel(b.ReadStatus)}
		if positions != nil {
			row = append([]string{strconv.Itoa(positions[i])}, row...)
		}
		t.rows = append(t.rows, row)
	}
	return t
}

func statsTables(s stats.Stats) []table {
	summary := table{
		headers: []string{"Total", "Read", "Unread", "% Read"},
		align:   []tw.Align{tw.AlignRight, tw.AlignRight, tw.AlignRight, tw.AlignRight},
		rows: [][]string{{
			strconv.Itoa(s.TotalBooks),
			strconv.Itoa(s.ReadBooks),
			strconv.Itoa(s.UnreadBooks),
			strconv.FormatFloat(s.PercentRead, 'f', 1, 64),
		}},
	}
	counts := func(title, key string, cs []stats.Count) table {
		t := table{title: title, headers: []string{key, "Books"}, align: []tw.Align{tw.AlignLeft, tw.AlignRight}}
		for _, c := range cs {
			t.rows = append(t.rows, []string{c.Key, strconv.Itoa(c.Count)})
		}
		return t
	}
	decades := table{title: "By decade", headers: []string{"Decade", "Books"}, align: []tw.Align{tw.AlignLeft, tw.AlignRight}}
	for _, d := range s.DecadeCounts {
		decades.rows = append(decades.rows, []string{fmt.Sprintf("%ds", d.Decade), strconv.Itoa(d.Count)})
	}
	return []table{
		summary,
		counts("By genre", "Genre", s.GenreCounts),
		counts("By author", "Author", s.AuthorCounts),
		decades,
	}
}

func importTables(rep importer.Report) []table {
	added := booksTable(rep.Added, nil)
	added.title = fmt.Sprintf("Added %d", len(rep.Added))
	failed := table{
		title:   fmt.Sprintf("Skipped %d", len(rep.Failed)),
		headers: []string{"Row", "Title", "Kind", "Error"},
		align:   []tw.Align{tw.AlignRight, tw.AlignLeft, tw.AlignLeft, tw.AlignLeft},
	}
	for _, f := range rep.Failed {
		failed.rows = append(failed.rows, []string{strconv.Itoa(f.Row), f.Title, f.Kind, f.Error})
	}
	return []table{added, failed}
}

func snapshotsTable(list []storage.FileMeta) table {
	t := table{
		headers: []string{"Snapshot", "Size", "Checksum", "Modified"},
		align:   []tw.Align{tw.AlignLeft, tw.AlignRight, tw.AlignLeft, tw.AlignLeft},
	}
	for _, m := range list {
		t.rows = append(t.rows, []string{
			m.Path,
			strconv.FormatInt(m.Size, 10),
			checksum.Short(m.Checksum),
			m.UpdatedAt.Local().Format(time.DateTime),
		})
	}
	return t
}

func backupLine(res backup.Result) string {
	if res.Unchanged {
		return fmt.Sprintf("unchanged since %s", res.Path)
	}
	line := fmt.Sprintf("wrote %s (%d bytes, %s)", res.Path, res.Size, checksum.Short(res.Checksum))
	if res.Pruned > 0 {
		line += fmt.Sprintf(", pruned %d", res.Pruned)
	}
	return line
}
