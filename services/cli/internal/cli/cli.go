// Package cli implements the jobhunt terminal client. Each entity command
// drives a view controller the same way a list page would.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"jobhunt/pkg/domain"
	"jobhunt/pkg/repository"
	"jobhunt/pkg/session"
	"jobhunt/pkg/store"
	"jobhunt/pkg/summary"
)

// Auth is the subset of the hosted auth API the CLI uses.
type Auth interface {
	session.Authenticator
	session.Refresher
	SignUp(ctx context.Context, email, password, redirectTo string) (domain.Session, error)
	SignIn(ctx context.Context, email, password string) (domain.Session, error)
	SignOut(ctx context.Context, token string) error
}

// Config wires the CLI. Store may be nil, in which case rows are read
// through the REST API with the session file's access token.
type Config struct {
	Auth              Auth
	Store             store.Store
	BackendURL        string
	AnonKey           string
	SignupRedirectURL string
	SessionPath       string
	In                io.Reader
	Out               io.Writer
	Err               io.Writer
}

type CLI struct {
	auth     Auth
	files    *session.FileStore
	identity session.Accessor
	jobs     repository.Repository[domain.Job, domain.JobFields]
	linkedIn repository.Repository[domain.LinkedInContact, domain.LinkedInFields]
	emails   repository.Repository[domain.ColdEmail, domain.EmailFields]
	summary  *summary.Service
	redirect string

	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
}

func New(cfg Config) (*CLI, error) {
	if cfg.Auth == nil {
		return nil, errors.New("cli requires an auth client")
	}
	path := cfg.SessionPath
	if path == "" {
		var err error
		if path, err = session.DefaultPath(); err != nil {
			return nil, err
		}
	}
	files := session.NewFileStore(path)
	tokens := session.NewFileTokens(files, cfg.Auth)

	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.BackendURL == "" {
			return nil, errors.New("cli requires a backend URL")
		}
		dataStore = store.NewRESTStore(cfg.BackendURL, cfg.AnonKey, tokens)
	}
	in, out, errOut := cfg.In, cfg.Out, cfg.Err
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}

	jobs := repository.Jobs(dataStore)
	linkedIn := repository.LinkedIn(dataStore)
	emails := repository.Emails(dataStore)
	return &CLI{
		auth:     cfg.Auth,
		files:    files,
		identity: &onceIdentity{inner: session.NewTokenAccessor(cfg.Auth, tokens)},
		jobs:     jobs,
		linkedIn: linkedIn,
		emails:   emails,
		summary:  summary.NewService(jobs, linkedIn, emails),
		redirect: cfg.SignupRedirectURL,
		in:       bufio.NewReader(in),
		out:      out,
		errOut:   errOut,
	}, nil
}

const usageText = `usage: jobhunt <command> [arguments]

commands:
  signup -email E [-password P]     create an account
  login -email E [-password P]      sign in and store the session
  logout                            sign out and remove the stored session
  whoami                            show the signed-in user
  dashboard                         show totals and reply rate
  list <kind> [-q text]             list rows, newest first
  add <kind> [field flags]          create a row
  edit <kind> <id> [field flags]    change a row
  delete <kind> <id> [-y]           delete a row after confirming
  shell <kind>                      interactive list view

kinds: jobs, linkedin, emails
`

// Run executes one command and returns the process exit code.
func (c *CLI) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(c.errOut, usageText)
		return 2
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "signup":
		return c.signup(ctx, rest)
	case "login":
		return c.login(ctx, rest)
	case "logout":
		return c.logout(ctx)
	case "whoami":
		return c.whoami(ctx)
	case "dashboard":
		return c.dashboard(ctx)
	case "list", "add", "edit", "delete", "shell":
		if len(rest) == 0 {
			fmt.Fprintf(c.errOut, "%s: missing kind (jobs, linkedin, emails)\n", cmd)
			return 2
		}
		return c.runKind(ctx, cmd, rest[0], rest[1:])
	case "help", "-h", "--help":
		fmt.Fprint(c.out, usageText)
		return 0
	default:
		fmt.Fprintf(c.errOut, "unknown command %q\n\n%s", cmd, usageText)
		return 2
	}
}

func (c *CLI) runKind(ctx context.Context, verb, name string, args []string) int {
	switch name {
	case "jobs", "job":
		return runEntity(ctx, c, verb, jobKind(c.jobs), args)
	case "linkedin":
		return runEntity(ctx, c, verb, linkedInKind(c.linkedIn), args)
	case "emails", "email":
		return runEntity(ctx, c, verb, emailKind(c.emails), args)
	default:
		fmt.Fprintf(c.errOut, "%s: unknown kind %q (jobs, linkedin, emails)\n", verb, name)
		return 2
	}
}

// fail reports err and returns the failure exit code.
func (c *CLI) fail(err error) int {
	msg := err.Error()
	if errors.Is(err, domain.ErrAuthRequired) {
		msg += " (run 'jobhunt login')"
	}
	fmt.Fprintf(c.errOut, "error: %s\n", msg)
	return 1
}

func (c *CLI) readLine(prompt string) (string, error) {
	fmt.Fprint(c.errOut, prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// confirm asks a yes/no question; anything but y or yes declines.
func (c *CLI) confirm(prompt string) bool {
	line, err := c.readLine(prompt)
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// onceIdentity resolves the identity once per command run.
type onceIdentity struct {
	inner session.Accessor

	mu   sync.Mutex
	done bool
	user domain.User
	ok   bool
}

func (o *onceIdentity) CurrentIdentity(ctx context.Context) (domain.User, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.done {
		o.user, o.ok = o.inner.CurrentIdentity(ctx)
		o.done = true
	}
	return o.user, o.ok
}
