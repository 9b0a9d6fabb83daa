package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"jobhunt/pkg/authclient"
	"jobhunt/pkg/domain"
)

func (c *CLI) credentials(name string, args []string) (string, string, bool) {
	fs := newFlagSet(name, c.errOut)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return "", "", false
	}
	if strings.TrimSpace(*email) == "" {
		fmt.Fprintf(c.errOut, "%s: -email is required\n", name)
		return "", "", false
	}
	if *password == "" {
		line, err := c.readLine("Password: ")
		if err != nil || line == "" {
			fmt.Fprintf(c.errOut, "%s: password is required\n", name)
			return "", "", false
		}
		*password = line
	}
	return strings.TrimSpace(*email), *password, true
}

func (c *CLI) signup(ctx context.Context, args []string) int {
	email, password, ok := c.credentials("signup", args)
	if !ok {
		return 2
	}
	sess, err := c.auth.SignUp(ctx, email, password, c.redirect)
	if errors.Is(err, authclient.ErrNoSession) {
		fmt.Fprintf(c.out, "Check %s for a confirmation link, then run 'jobhunt login'.\n", email)
		return 0
	}
	if err != nil {
		return c.fail(err)
	}
	if err := c.files.Save(sess); err != nil {
		return c.fail(err)
	}
	fmt.Fprintf(c.out, "Signed up and signed in as %s.\n", sess.User.Email)
	return 0
}

func (c *CLI) login(ctx context.Context, args []string) int {
	email, password, ok := c.credentials("login", args)
	if !ok {
		return 2
	}
	sess, err := c.auth.SignIn(ctx, email, password)
	if err != nil {
		return c.fail(err)
	}
	if err := c.files.Save(sess); err != nil {
		return c.fail(err)
	}
	fmt.Fprintf(c.out, "Signed in as %s.\n", sess.User.Email)
	return 0
}

// logout revokes the session remotely when possible; the local session is
// removed either way.
func (c *CLI) logout(ctx context.Context) int {
	sess, ok, err := c.files.Load()
	if err != nil {
		slog.Warn("read session file failed", "path", c.files.Path(), "err", err)
	}
	if ok && sess.AccessToken != "" {
		if err := c.auth.SignOut(ctx, sess.AccessToken); err != nil {
			slog.Warn("remote sign out failed", "err", err)
		}
	}
	if err := c.files.Clear(); err != nil {
		return c.fail(err)
	}
	fmt.Fprintln(c.out, "Signed out.")
	return 0
}

func (c *CLI) whoami(ctx context.Context) int {
	user, ok := c.identity.CurrentIdentity(ctx)
	if !ok {
		fmt.Fprintln(c.errOut, "Not signed in.")
		return 1
	}
	fmt.Fprintf(c.out, "%s (%s)\n", user.Email, user.ID)
	return 0
}

func (c *CLI) dashboard(ctx context.Context) int {
	user, ok := c.identity.CurrentIdentity(ctx)
	if !ok {
		return c.fail(domain.ErrAuthRequired)
	}
	s, err := c.summary.Load(ctx, user.ID)
	if err != nil {
		return c.fail(err)
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Total applications\t%d\n", s.TotalApplications)
	fmt.Fprintf(tw, "LinkedIn contacts\t%d\n", s.LinkedInContacts)
	fmt.Fprintf(tw, "Cold emails\t%d\n", s.ColdEmails)
	fmt.Fprintf(tw, "Reply rate\t%d%%\n", s.ReplyRate)
	for _, status := range domain.JobStatuses {
		fmt.Fprintf(tw, "  %s\t%d\n", status, s.ByStatus[status])
	}
	_ = tw.Flush()
	return 0
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}
