package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"jobhunt/pkg/domain"
	"jobhunt/pkg/view"
)

const shellHelp = `commands:
  ls [text]            show rows, optionally filtered
  add [field flags]    create a row
  edit <#n|id> [flags] change a row
  rm [-y] <#n|id>      delete a row after confirming
  reload               fetch the list again
  help                 show this help
  quit                 leave the shell
`

// runShell keeps one view open and re-renders it on every change of its
// rows, so an optimistic delete shows before the store answers.
func runShell[E view.Row[F], F domain.Fields](ctx context.Context, c *CLI, ctrl *view.Controller[E, F], k kind[E, F]) int {
	if _, ok := c.identity.CurrentIdentity(ctx); !ok {
		return c.fail(domain.ErrAuthRequired)
	}
	var shown []E
	unsubscribe := ctrl.Subscribe(func(s view.State[E, F]) {
		if s.Loading || reflect.DeepEqual(s.Items, shown) {
			return
		}
		shown = s.Items
		renderRows(c.out, k, shown)
	})
	defer unsubscribe()

	if err := ctrl.Load(ctx); err != nil {
		fmt.Fprintf(c.errOut, "load failed: %v\n", err)
	}
	for {
		if ctx.Err() != nil {
			return 1
		}
		line, err := c.readLine(k.name + "> ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(c.errOut)
				return 0
			}
			return c.fail(err)
		}
		args := splitArgs(line)
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "quit", "exit":
			return 0
		case "help", "?":
			fmt.Fprint(c.out, shellHelp)
		case "ls":
			renderRows(c.out, k, ctrl.Visible(strings.Join(args[1:], " ")))
		case "reload":
			if err := ctrl.Load(ctx); err != nil {
				fmt.Fprintf(c.errOut, "load failed: %v\n", err)
			}
		case "add":
			draft := k.defaults
			fs := newFlagSet("add", c.errOut)
			k.bind(fs, &draft)
			if err := fs.Parse(args[1:]); err != nil {
				continue
			}
			if err := ctrl.OpenCreate(k.defaults); err != nil {
				fmt.Fprintf(c.errOut, "error: %v\n", err)
				continue
			}
			if err := ctrl.Submit(ctx, draft); err != nil {
				fmt.Fprintf(c.errOut, "save failed: %s\n", ctrl.Snapshot().Form.Error)
				_ = ctrl.Cancel()
			}
		case "edit":
			if len(args) < 2 {
				fmt.Fprintln(c.errOut, "usage: edit <#n|id> [flags]")
				continue
			}
			id, ok := resolveRef(ctrl.Snapshot().Items, args[1])
			if !ok {
				fmt.Fprintf(c.errOut, "no row %s\n", args[1])
				continue
			}
			if code := editItem(ctx, c, ctrl, k, id, args[2:]); code == 1 {
				_ = ctrl.Cancel()
			}
		case "rm":
			ref, yes, ok := rmArgs(args[1:])
			if !ok {
				fmt.Fprintln(c.errOut, "usage: rm [-y] <#n|id>")
				continue
			}
			id, ok := resolveRef(ctrl.Snapshot().Items, ref)
			if !ok {
				fmt.Fprintf(c.errOut, "no row %s\n", ref)
				continue
			}
			if !yes && !c.confirm(fmt.Sprintf("Delete %s (%s)? [y/N] ", ref, id)) {
				fmt.Fprintln(c.out, "Not deleted.")
				continue
			}
			if err := ctrl.Delete(ctx, id); err != nil {
				fmt.Fprintf(c.errOut, "delete failed, list restored: %v\n", err)
			}
		default:
			fmt.Fprintf(c.errOut, "unknown command %q, try help\n", args[0])
		}
	}
}

// rmArgs reads "<ref>" with an optional -y before or after it.
func rmArgs(args []string) (ref string, yes bool, ok bool) {
	for _, arg := range args {
		switch {
		case arg == "-y":
			yes = true
		case ref == "":
			ref = arg
		default:
			return "", false, false
		}
	}
	return ref, yes, ref != ""
}

// resolveRef maps "#n" (1-based position in the list) or a literal id to an id.
func resolveRef[E domain.Entity](items []E, ref string) (string, bool) {
	if n, ok := strings.CutPrefix(ref, "#"); ok {
		i, err := strconv.Atoi(n)
		if err != nil || i < 1 || i > len(items) {
			return "", false
		}
		return items[i-1].EntityID(), true
	}
	for _, item := range items {
		if item.EntityID() == ref {
			return ref, true
		}
	}
	return "", false
}

// splitArgs splits a shell line on spaces, keeping double-quoted runs together.
func splitArgs(line string) []string {
	var (
		args    []string
		cur     strings.Builder
		quoted  bool
		pending bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
			pending = true
		case (r == ' ' || r == '\t') && !quoted:
			if pending {
				args = append(args, cur.String())
				cur.Reset()
				pending = false
			}
		default:
			cur.WriteRune(r)
			pending = true
		}
	}
	if pending {
		args = append(args, cur.String())
	}
	return args
}
