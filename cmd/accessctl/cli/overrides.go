package cli

import (
	"context"
	"fmt"
	"time"
)

func (c *AccessCLI) grant(ctx context.Context, args []string, opts Options) int {
	const name = "grant"
	fs := newFlagSet(name, opts)
	userID := fs.Int64("user", 0, "user receiving the permission")
	rawPerm := fs.String("perm", "", "permission, e.g. READ_ALL_CLIENTS")
	by := fs.Int64("by", 0, "administrator granting the permission")
	reason := fs.String("reason", "", "why the grant is needed")
	expires := fs.String("expires", "", "expiry as RFC3339 timestamp")
	ttl := fs.Duration("for", 0, "expiry relative to now, e.g. 72h")
	if code, ok := parse(fs, args); !ok {
		return code
	}
	if *userID <= 0 || *by <= 0 {
		return usageError(opts, name, "--user and --by are required")
	}
	perm, code, ok := parsePermission(opts, name, *rawPerm)
	if !ok {
		return code
	}
	if *expires != "" && *ttl != 0 {
		return usageError(opts, name, "--expires and --for are mutually exclusive")
	}
	var expiresAt *time.Time
	switch {
	case *expires != "":
		t, err := time.Parse(time.RFC3339, *expires)
		if err != nil {
			return usageError(opts, name, "invalid --expires %q (expected RFC3339)", *expires)
		}
		expiresAt = &t
	case *ttl != 0:
		t := c.now().Add(*ttl)
		expiresAt = &t
	}
	if err := c.admin.Grant(ctx, *userID, perm, *by, *reason, expiresAt); err != nil {
		return failure(opts, name, err)
	}
	if expiresAt != nil {
		_, _ = fmt.Fprintf(opts.Stdout, "granted %s to user %d until %s\n", perm, *userID, expiresAt.UTC().Format(time.RFC3339))
	} else {
		_, _ = fmt.Fprintf(opts.Stdout, "granted %s to user %d\n", perm, *userID)
	}
	return ExitOK
}

func (c *AccessCLI) revoke(ctx context.Context, args []string, opts Options) int {
	const name = "revoke"
	fs := newFlagSet(name, opts)
	userID := fs.Int64("user", 0, "user losing the permission")
	rawPerm := fs.String("perm", "", "permission, e.g. DELETE_CLIENT")
	by := fs.Int64("by", 0, "administrator revoking the permission")
	reason := fs.String("reason", "", "why the revoke is needed")
	if code, ok := parse(fs, args); !ok {
		return code
	}
	if *userID <= 0 || *by <= 0 {
		return usageError(opts, name, "--user and --by are required")
	}
	perm, code, ok := parsePermission(opts, name, *rawPerm)
	if !ok {
		return code
	}
	if err := c.admin.Revoke(ctx, *userID, perm, *by, *reason); err != nil {
		return failure(opts, name, err)
	}
	_, _ = fmt.Fprintf(opts.Stdout, "revoked %s from user %d\n", perm, *userID)
	return ExitOK
}

func (c *AccessCLI) clear(ctx context.Context, args []string, opts Options) int {
	const name = "clear"
	fs := newFlagSet(name, opts)
	userID := fs.Int64("user", 0, "user whose override is removed")
	rawPerm := fs.String("perm", "", "permission of the override")
	if code, ok := parse(fs, args); !ok {
		return code
	}
	if *userID <= 0 {
		return usageError(opts, name, "--user is required")
	}
	perm, code, ok := parsePermission(opts, name, *rawPerm)
	if !ok {
		return code
	}
	if err := c.admin.ClearOverride(ctx, *userID, perm); err != nil {
		return failure(opts, name, err)
	}
	_, _ = fmt.Fprintf(opts.Stdout, "cleared %s override for user %d\n", perm, *userID)
	return ExitOK
}

func (c *AccessCLI) effective(ctx context.Context, args []string, opts Options) int {
	const name = "effective"
	fs := newFlagSet(name, opts)
	userID := fs.Int64("user", 0, "user to inspect")
	asJSON := fs.Bool("json", false, "print JSON")
	if code, ok := parse(fs, args); !ok {
		return code
	}
	if *userID <= 0 {
		return usageError(opts, name, "--user is required")
	}
	perms, err := c.admin.ListEffectivePermissions(ctx, *userID)
	if err != nil {
		return failure(opts, name, err)
	}
	if *asJSON {
		return writeJSON(opts, name, struct {
			UserID      int64    `json:"user_id"`
			Permissions []string `json:"permissions"`
		}{UserID: *userID, Permissions: permissionNames(perms)})
	}
	for _, perm := range perms {
		_, _ = fmt.Fprintln(opts.Stdout, perm)
	}
	return ExitOK
}
