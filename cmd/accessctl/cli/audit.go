package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/estatecrm/estatecrm/internal/audit"
	"github.com/estatecrm/estatecrm/internal/rbac/catalog"
)

const dateLayout = "2006-01-02"

func (c *AccessCLI) queryAudit(ctx context.Context, args []string, opts Options) int {
	const name = "audit"
	fs := newFlagSet(name, opts)
	userID := fs.Int64("user", 0, "only entries for this user")
	rawPerm := fs.String("perm", "", "only entries for this permission")
	rawType := fs.String("resource-type", "", "only entries for this resource type")
	resourceID := fs.Int64("resource-id", 0, "only entries for this resource id")
	rawGranted := fs.String("granted", "", "true or false")
	from := fs.String("from", "", "first day, YYYY-MM-DD")
	to := fs.String("to", "", "last day inclusive, YYYY-MM-DD")
	page := fs.Int("page", 1, "page number")
	pageSize := fs.Int("page-size", 50, "rows per page")
	asJSON := fs.Bool("json", false, "print JSON")
	if code, ok := parse(fs, args); !ok {
		return code
	}
	if c.audit == nil {
		return failure(opts, name, errors.New("access log not configured"))
	}

	filter := audit.Filter{UserID: *userID, ResourceID: *resourceID, Page: *page, PageSize: *pageSize}
	if *rawPerm != "" {
		perm, code, ok := parsePermission(opts, name, *rawPerm)
		if !ok {
			return code
		}
		filter.Permission = perm
	}
	if *rawType != "" {
		rt, err := catalog.ParseResourceType(*rawType)
		if err != nil {
			return usageError(opts, name, "%v", err)
		}
		filter.ResourceType = rt
	}
	if *rawGranted != "" {
		granted, err := strconv.ParseBool(*rawGranted)
		if err != nil {
			return usageError(opts, name, "invalid --granted %q", *rawGranted)
		}
		filter.Granted = &granted
	}
	if *from != "" {
		t, err := time.Parse(dateLayout, *from)
		if err != nil {
			return usageError(opts, name, "invalid --from %q (expected YYYY-MM-DD)", *from)
		}
		filter.From = t
	}
	if *to != "" {
		t, err := time.Parse(dateLayout, *to)
		if err != nil {
			return usageError(opts, name, "invalid --to %q (expected YYYY-MM-DD)", *to)
		}
		filter.To = t.AddDate(0, 0, 1)
	}

	result, err := c.audit.Query(ctx, filter)
	if err != nil {
		return failure(opts, name, err)
	}
	if *asJSON {
		rows := result.Rows
		if rows == nil {
			rows = []audit.Entry{}
		}
		return writeJSON(opts, name, struct {
			Rows   []audit.Entry    `json:"rows"`
			Paging audit.PagingInfo `json:"paging"`
		}{Rows: rows, Paging: result.Paging})
	}
	tw := tabwriter.NewWriter(opts.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "AT\tUSER\tPERMISSION\tRESOURCE\tGRANTED\tREASON\tACTION")
	for _, e := range result.Rows {
		resource := "-"
		if e.ResourceType != "" {
			resource = e.ResourceType
			if e.ResourceID != nil {
				resource += "/" + strconv.FormatInt(*e.ResourceID, 10)
			}
		}
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%t\t%s\t%s\n",
			e.At.UTC().Format(time.RFC3339), e.UserID, e.Permission, resource, e.Granted, e.Reason, e.Action)
	}
	_ = tw.Flush()
	if result.Paging.HasNext {
		_, _ = fmt.Fprintf(opts.Stdout, "more rows: --page %d\n", result.Paging.NextPage)
	}
	return ExitOK
}

func (c *AccessCLI) sweep(ctx context.Context, args []string, opts Options) int {
	const name = "sweep"
	fs := newFlagSet(name, opts)
	enqueue := fs.Bool("enqueue", false, "hand the sweep to the worker instead of running it here")
	if code, ok := parse(fs, args); !ok {
		return code
	}
	if *enqueue {
		if c.queue == nil {
			return failure(opts, name, errors.New("queue not configured"))
		}
		info, err := c.queue.EnqueueOverrideSweep(ctx)
		if err != nil {
			return failure(opts, name, err)
		}
		_, _ = fmt.Fprintf(opts.Stdout, "enqueued sweep task %s on queue %s\n", info.ID, info.Queue)
		return ExitOK
	}
	n, err := c.admin.SweepExpired(ctx)
	if err != nil {
		return failure(opts, name, err)
	}
	_, _ = fmt.Fprintf(opts.Stdout, "deleted %d expired overrides\n", n)
	return ExitOK
}
