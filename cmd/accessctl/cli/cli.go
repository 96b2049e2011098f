// Package cli implements the accessctl subcommands. Each command parses its own
// flags and reports through an exit code so the commands can be driven from
// tests without a process boundary.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/pflag"

	"github.com/estatecrm/estatecrm/internal/audit"
	"github.com/estatecrm/estatecrm/internal/rbac"
	"github.com/estatecrm/estatecrm/internal/rbac/catalog"
)

// Exit codes shared by every command.
const (
	ExitOK     = 0
	ExitError  = 1
	ExitUsage  = 2
	ExitDenied = 10
)

// Admin is the administration surface the CLI drives; *rbac.Service
// satisfies it.
type Admin interface {
	Grant(ctx context.Context, userID int64, perm catalog.Permission, grantedBy int64, reason string, expiresAt *time.Time) error
	Revoke(ctx context.Context, userID int64, perm catalog.Permission, revokedBy int64, reason string) error
	ClearOverride(ctx context.Context, userID int64, perm catalog.Permission) error
	ListEffectivePermissions(ctx context.Context, userID int64) ([]catalog.Permission, error)
	SetOwner(ctx context.Context, userID int64, resourceType catalog.ResourceType, resourceID int64, kind rbac.OwnershipKind) error
	SweepExpired(ctx context.Context) (int64, error)
}

// AuditQuery pages through the access log; *audit.Service satisfies it.
type AuditQuery interface {
	Query(ctx context.Context, filter audit.Filter) (audit.Result, error)
}

// SweepQueue hands the sweep to the worker; *jobs.Client satisfies it.
type SweepQueue interface {
	EnqueueOverrideSweep(ctx context.Context) (*asynq.TaskInfo, error)
}

// Options carries the output streams.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
}

// AccessCLI dispatches accessctl subcommands.
type AccessCLI struct {
	admin   Admin
	checker rbac.Checker
	audit   AuditQuery
	queue   SweepQueue
	now     func() time.Time
}

// NewAccessCLI constructs the CLI. queue may be nil, in which case
// sweep --enqueue is rejected.
func NewAccessCLI(admin Admin, checker rbac.Checker, auditQuery AuditQuery, queue SweepQueue) *AccessCLI {
	return &AccessCLI{admin: admin, checker: checker, audit: auditQuery, queue: queue, now: time.Now}
}

type command struct {
	summary string
	run     func(c *AccessCLI, ctx context.Context, args []string, opts Options) int
}

var commands = map[string]command{
	"grant":     {"grant a permission to a user, optionally until an expiry", (*AccessCLI).grant},
	"revoke":    {"revoke a permission from a user regardless of role", (*AccessCLI).revoke},
	"clear":     {"remove an override so the role default applies again", (*AccessCLI).clear},
	"effective": {"list the permissions a user holds now", (*AccessCLI).effective},
	"check":     {"resolve one permission check and record it", (*AccessCLI).check},
	"set-owner": {"record a user as owner of a resource", (*AccessCLI).setOwner},
	"audit":     {"query the access log", (*AccessCLI).queryAudit},
	"sweep":     {"delete expired overrides", (*AccessCLI).sweep},
}

// Run executes the subcommand named by args[0].
func (c *AccessCLI) Run(ctx context.Context, args []string, opts Options) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		Usage(opts.Stderr)
		return ExitUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		_, _ = fmt.Fprintf(opts.Stderr, "accessctl: unknown command %q\n", args[0])
		Usage(opts.Stderr)
		return ExitUsage
	}
	return cmd.run(c, ctx, args[1:], opts)
}

// Usage prints the command list.
func Usage(w io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	_, _ = fmt.Fprintln(w, "usage: accessctl <command> [flags]")
	_, _ = fmt.Fprintln(w)
	for _, name := range names {
		_, _ = fmt.Fprintf(w, "  %-10s %s\n", name, commands[name].summary)
	}
}

func newFlagSet(name string, opts Options) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(opts.Stderr)
	return fs
}

// parse returns false with the exit code to use when flags are invalid.
func parse(fs *pflag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return ExitOK, false
		}
		return ExitUsage, false
	}
	return ExitOK, true
}

func usageError(opts Options, name, format string, args ...any) int {
	_, _ = fmt.Fprintf(opts.Stderr, "%s: %s\n", name, fmt.Sprintf(format, args...))
	return ExitUsage
}

func failure(opts Options, name string, err error) int {
	_, _ = fmt.Fprintf(opts.Stderr, "%s: %v\n", name, err)
	return ExitError
}

func parsePermission(opts Options, name, raw string) (catalog.Permission, int, bool) {
	if strings.TrimSpace(raw) == "" {
		return 0, usageError(opts, name, "--perm is required"), false
	}
	perm, err := catalog.ParsePermission(raw)
	if err != nil {
		return 0, usageError(opts, name, "%v", err), false
	}
	return perm, ExitOK, true
}

func writeJSON(opts Options, name string, v any) int {
	enc := json.NewEncoder(opts.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return failure(opts, name, fmt.Errorf("encode json: %w", err))
	}
	return ExitOK
}
