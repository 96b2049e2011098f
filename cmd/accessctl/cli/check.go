package cli

import (
	"context"
	"fmt"

	"github.com/estatecrm/estatecrm/internal/rbac"
	"github.com/estatecrm/estatecrm/internal/rbac/catalog"
)

type checkOutput struct {
	UserID     int64  `json:"user_id"`
	Permission string `json:"permission"`
	Granted    bool   `json:"granted"`
	Reason     string `json:"reason"`
	CallID     string `json:"call_id"`
	AuditError string `json:"audit_error,omitempty"`
}

// check exits ExitDenied on a deny so scripts can branch on the outcome.
func (c *AccessCLI) check(ctx context.Context, args []string, opts Options) int {
	const name = "check"
	fs := newFlagSet(name, opts)
	userID := fs.Int64("user", 0, "user to check")
	rawPerm := fs.String("perm", "", "permission to check")
	rawType := fs.String("resource-type", "", "client, property, transaction or document")
	resourceID := fs.Int64("resource-id", 0, "resource instance id")
	asJSON := fs.Bool("json", false, "print JSON")
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
	req := rbac.Request{UserID: *userID, Permission: perm, Action: "accessctl check"}
	if *rawType != "" || *resourceID != 0 {
		rt, err := catalog.ParseResourceType(*rawType)
		if err != nil {
			return usageError(opts, name, "%v", err)
		}
		if *resourceID <= 0 {
			return usageError(opts, name, "--resource-id must be positive")
		}
		req.Resource = &rbac.Resource{Type: rt, ID: *resourceID}
	}

	decision, err := c.checker.CheckPermission(ctx, req)
	if err != nil {
		return failure(opts, name, err)
	}
	out := checkOutput{
		UserID:     *userID,
		Permission: perm.String(),
		Granted:    decision.Granted,
		Reason:     decision.Reason.String(),
		CallID:     decision.CallID.String(),
	}
	if decision.AuditErr != nil {
		out.AuditError = decision.AuditErr.Error()
		_, _ = fmt.Fprintf(opts.Stderr, "%s: warning: %v\n", name, decision.AuditErr)
	}
	if *asJSON {
		if code := writeJSON(opts, name, out); code != ExitOK {
			return code
		}
	} else {
		verdict := "denied"
		if out.Granted {
			verdict = "granted"
		}
		_, _ = fmt.Fprintf(opts.Stdout, "%s reason=%s call_id=%s\n", verdict, out.Reason, out.CallID)
	}
	if !decision.Granted {
		return ExitDenied
	}
	return ExitOK
}

func (c *AccessCLI) setOwner(ctx context.Context, args []string, opts Options) int {
	const name = "set-owner"
	fs := newFlagSet(name, opts)
	userID := fs.Int64("user", 0, "new owner")
	rawType := fs.String("resource-type", "", "client, property, transaction or document")
	resourceID := fs.Int64("resource-id", 0, "resource instance id")
	rawKind := fs.String("kind", "owner", "owner, co_owner or assignee")
	if code, ok := parse(fs, args); !ok {
		return code
	}
	if *userID <= 0 || *resourceID <= 0 {
		return usageError(opts, name, "--user and --resource-id are required")
	}
	rt, err := catalog.ParseResourceType(*rawType)
	if err != nil {
		return usageError(opts, name, "%v", err)
	}
	kind, ok := rbac.ParseOwnershipKind(*rawKind)
	if !ok {
		return usageError(opts, name, "invalid --kind %q", *rawKind)
	}
	if err := c.admin.SetOwner(ctx, *userID, rt, *resourceID, kind); err != nil {
		return failure(opts, name, err)
	}
	_, _ = fmt.Fprintf(opts.Stdout, "user %d is %s of %s %d\n", *userID, kind, rt, *resourceID)
	return ExitOK
}

func permissionNames(perms []catalog.Permission) []string {
	out := make([]string, len(perms))
	for i, perm := range perms {
		out[i] = perm.String()
	}
	return out
}
