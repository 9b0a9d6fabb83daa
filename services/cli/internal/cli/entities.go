package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"jobhunt/pkg/domain"
	"jobhunt/pkg/view"
)

func runEntity[E view.Row[F], F domain.Fields](ctx context.Context, c *CLI, verb string, k kind[E, F], args []string) int {
	ctrl := view.New[E, F](k.repo, c.identity)
	defer ctrl.Close()

	if verb == "shell" {
		return runShell(ctx, c, ctrl, k)
	}
	if _, ok := c.identity.CurrentIdentity(ctx); !ok {
		return c.fail(domain.ErrAuthRequired)
	}
	switch verb {
	case "list":
		fs := newFlagSet("list "+k.name, c.errOut)
		query := fs.String("q", "", "case-insensitive search on name or company")
		if err := fs.Parse(args); err != nil {
			return 2
		}
		if err := ctrl.Load(ctx); err != nil {
			return c.fail(err)
		}
		renderRows(c.out, k, ctrl.Visible(*query))
		return 0
	case "add":
		draft := k.defaults
		fs := newFlagSet("add "+k.name, c.errOut)
		k.bind(fs, &draft)
		if err := fs.Parse(args); err != nil {
			return 2
		}
		if err := ctrl.OpenCreate(k.defaults); err != nil {
			return c.fail(err)
		}
		if err := ctrl.Submit(ctx, draft); err != nil {
			return c.fail(err)
		}
		fmt.Fprintln(c.out, "Saved.")
		if items := ctrl.Snapshot().Items; len(items) > 0 {
			renderRows(c.out, k, items[:1])
		}
		return 0
	case "edit":
		id, rest, ok := splitID(args)
		if !ok {
			fmt.Fprintf(c.errOut, "edit %s: missing id\n", k.name)
			return 2
		}
		if err := ctrl.Load(ctx); err != nil {
			return c.fail(err)
		}
		if code := editItem(ctx, c, ctrl, k, id, rest); code != 0 {
			return code
		}
		fmt.Fprintln(c.out, "Saved.")
		return 0
	case "delete":
		fs := newFlagSet("delete "+k.name, c.errOut)
		yes := fs.Bool("y", false, "delete without asking")
		if err := fs.Parse(args); err != nil {
			return 2
		}
		id, rest, ok := splitID(fs.Args())
		if !ok {
			fmt.Fprintf(c.errOut, "delete %s: missing id\n", k.name)
			return 2
		}
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		if !*yes && !c.confirm(fmt.Sprintf("Delete %s row %s? [y/N] ", k.name, id)) {
			fmt.Fprintln(c.out, "Not deleted.")
			return 0
		}
		if err := ctrl.Load(ctx); err != nil {
			return c.fail(err)
		}
		if err := ctrl.Delete(ctx, id); err != nil {
			return c.fail(err)
		}
		fmt.Fprintln(c.out, "Deleted.")
		return 0
	default:
		fmt.Fprintf(c.errOut, "unknown command %q\n", verb)
		return 2
	}
}

// editItem opens the edit form for id, applies flags over the stored values
// and saves.
func editItem[E view.Row[F], F domain.Fields](ctx context.Context, c *CLI, ctrl *view.Controller[E, F], k kind[E, F], id string, args []string) int {
	if err := ctrl.OpenEdit(id); err != nil {
		if errors.Is(err, view.ErrNotFound) {
			fmt.Fprintf(c.errOut, "error: no %s row with id %s\n", k.name, id)
			return 1
		}
		return c.fail(err)
	}
	draft := ctrl.Snapshot().Form.Draft
	fs := newFlagSet("edit "+k.name, c.errOut)
	k.bind(fs, &draft)
	if err := fs.Parse(args); err != nil {
		_ = ctrl.Cancel()
		return 2
	}
	if err := ctrl.Submit(ctx, draft); err != nil {
		return c.fail(err)
	}
	return 0
}

func splitID(args []string) (string, []string, bool) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") || strings.TrimSpace(args[0]) == "" {
		return "", nil, false
	}
	return strings.TrimSpace(args[0]), args[1:], true
}

func renderRows[E view.Row[F], F domain.Fields](w io.Writer, k kind[E, F], items []E) {
	if len(items) == 0 {
		fmt.Fprintf(w, "No %s.\n", k.name)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\t"+strings.Join(k.header, "\t"))
	for i, item := range items {
		fmt.Fprintf(tw, "%d\t%s\n", i+1, strings.Join(k.row(item), "\t"))
	}
	_ = tw.Flush()
}
