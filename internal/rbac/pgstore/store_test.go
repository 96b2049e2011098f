package pgstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatecrm/estatecrm/internal/audit"
	"github.com/estatecrm/estatecrm/internal/rbac/catalog"
)

func TestBuildAccessLogQueryWithoutFilter(t *testing.T) {
	query, args := buildAccessLogQuery(audit.ListParams{Limit: 21})
	assert.NotContains(t, query, "WHERE")
	assert.Contains(t, query, "ORDER BY at DESC, id DESC LIMIT $1")
	assert.NotContains(t, query, "OFFSET")
	assert.Equal(t, []any{21}, args)
}

func TestBuildAccessLogQueryWithFilter(t *testing.T) {
	granted := false
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	query, args := buildAccessLogQuery(audit.ListParams{
		Filter: audit.Filter{
			UserID:       7,
			Permission:   catalog.ReadClient,
			ResourceType: catalog.ResourceClient,
			ResourceID:   101,
			Granted:      &granted,
			From:         from,
			To:           to,
		},
		Offset: 40,
		Limit:  21,
	})
	assert.Contains(t, query, "WHERE user_id = $1 AND permission = $2 AND resource_type = $3 AND resource_id = $4 AND granted = $5 AND at >= $6 AND at < $7")
	assert.Contains(t, query, "LIMIT $8 OFFSET $9")
	require.Len(t, args, 9)
	assert.Equal(t, "READ_CLIENT", args[1])
	assert.Equal(t, "client", args[2])
	assert.Equal(t, false, args[4])
	assert.Equal(t, 40, args[8])
}

func TestOwnerColumnsQuery(t *testing.T) {
	query, ok := DefaultOwnerColumns().query(catalog.ResourceProperty)
	require.True(t, ok)
	assert.Equal(t, `SELECT "listing_agent_id" FROM "properties" WHERE id = $1`, query)

	_, ok = OwnerColumns{}.query(catalog.ResourceClient)
	assert.False(t, ok)

	query, ok = OwnerColumns{catalog.ResourceClient: {Table: `crm"clients`, Column: "agent_id"}}.query(catalog.ResourceClient)
	require.True(t, ok)
	assert.Equal(t, `SELECT "agent_id" FROM "crm""clients" WHERE id = $1`, query)
}

func TestSchemaDeclaresUniqueKeys(t *testing.T) {
	assert.Contains(t, Schema, "PRIMARY KEY (user_id, permission)")
	assert.Contains(t, Schema, "PRIMARY KEY (user_id, resource_type, resource_id)")
	assert.Contains(t, Schema, "call_id       UUID        NOT NULL UNIQUE")
}
