package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/guildsnapshot/internal/models"
	"github.com/parsascontentcorner/guildsnapshot/internal/snapshot"
)

// ============================================================================
// Snapshot Sync Flow
// ============================================================================

func TestSnapshotSync_FullFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	ts := setupTestSuite(t)
	defer ts.cleanup()

	result := snapshot.RunSnapshotSync(ctx, ts.sync)
	require.True(t, result.Success, "sync should succeed, got reason %q", result.Reason)
	assert.Equal(t, models.SyncReasonNone, result.Reason)
	// Veteran: 3, 4, 5, 8; Officer Corps: 2, 5
	assert.Equal(t, 6, result.AccoladeRowCount)
	assert.Equal(t, 2, result.OfficerRowCount)

	// Seven members in pages of three: 3 + 3 + 1
	assert.Equal(t, int32(3), ts.discord.MemberCalls.Load())

	rows, err := ts.db.ListAccoladeRecipients(ctx, []int64{ts.accolades[veteranRoleID]})
	require.NoError(t, err)
	require.Len(t, rows, 4)
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.DisplayName)
	}
	// Display name falls back to the username when there is no nickname
	assert.Equal(t, []string{"Lieutenant", "Old Hand", "user_200000000000000003", "user_200000000000000008"}, names)

	officers, err := ts.db.ListOfficerProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, officers, 2)
	for _, o := range officers {
		assert.Equal(t, "Officer", o.RoleName.String)
		assert.Equal(t, "#3498db", o.RoleColor.String)
	}
}

func TestSnapshotSync_ReplacesPreviousSnapshot(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	ts := setupTestSuite(t)
	defer ts.cleanup()

	first := snapshot.RunSnapshotSync(ctx, ts.sync)
	require.True(t, first.Success)

	// Everyone but the first officer leaves the guild
	ts.discord.SetMembers(testMembers()[:1])

	second := snapshot.RunSnapshotSync(ctx, ts.sync)
	require.True(t, second.Success)
	assert.Equal(t, 1, second.AccoladeRowCount)
	assert.Equal(t, 1, second.OfficerRowCount)

	rows, err := ts.db.ListAccoladeRecipients(ctx, []int64{
		ts.accolades[veteranRoleID],
		ts.accolades[officerRoleID],
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "200000000000000002", rows[0].UserID)
	assert.Equal(t, ts.accolades[officerRoleID], rows[0].AccoladeID)
}

func TestSnapshotSync_RoleFetchFailureKeepsTables(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	ts := setupTestSuite(t)
	defer ts.cleanup()

	require.True(t, snapshot.RunSnapshotSync(ctx, ts.sync).Success)

	ts.discord.FailRoles(true)
	result := snapshot.RunSnapshotSync(ctx, ts.sync)
	assert.False(t, result.Success)
	assert.Equal(t, models.SyncReasonRoleFetchFailed, result.Reason)

	officers, err := ts.db.ListOfficerProfiles(ctx)
	require.NoError(t, err)
	assert.Len(t, officers, 2, "failed sync should leave the previous snapshot")
}

func TestSnapshotSync_MissingGuildID(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	ts := setupTestSuite(t)
	defer ts.cleanup()

	unconfigured := snapshot.NewSynchronizer(snapshot.Config{}, nil, nil, ts.db, zap.NewNop())
	result := unconfigured.Run(ctx)
	assert.False(t, result.Success)
	assert.Equal(t, models.SyncReasonMissingGuildID, result.Reason)
	assert.Equal(t, int32(0), ts.discord.GuildCalls.Load())
}

// ============================================================================
// Read API Flow
// ============================================================================

func TestReadAPI_AfterSync(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	ts := setupTestSuite(t)
	defer ts.cleanup()

	require.True(t, snapshot.RunSnapshotSync(ctx, ts.sync).Success)

	t.Run("accolades", func(t *testing.T) {
		resp := ts.get(t, "/api/accolades")
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Accolades []struct {
				Name       string `json:"name"`
				Recipients []struct {
					ID string `json:"id"`
				} `json:"recipients"`
				SyncedAt *int64 `json:"syncedAt"`
			} `json:"accolades"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Len(t, body.Accolades, 2)

		counts := map[string]int{}
		for _, a := range body.Accolades {
			counts[a.Name] = len(a.Recipients)
			assert.NotNil(t, a.SyncedAt)
		}
		assert.Equal(t, map[string]int{"Veteran": 4, "Officer Corps": 2}, counts)
	})

	t.Run("officers", func(t *testing.T) {
		require.NoError(t, ts.db.UpsertOfficerBio(ctx, &models.OfficerBio{
			DiscordUserID: "200000000000000002",
			Bio:           "Keeps the lights on",
		}))

		resp := ts.get(t, "/api/officers")
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Officers []struct {
				UserID      string  `json:"userId"`
				DisplayName string  `json:"displayName"`
				Bio         *string `json:"bio"`
			} `json:"officers"`
			Stale bool `json:"stale"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.False(t, body.Stale)
		require.Len(t, body.Officers, 2)

		// Same syncedAt, so ordered by display name
		assert.Equal(t, "Captain", body.Officers[0].DisplayName)
		require.NotNil(t, body.Officers[0].Bio)
		assert.Equal(t, "Keeps the lights on", *body.Officers[0].Bio)
		assert.Equal(t, "Lieutenant", body.Officers[1].DisplayName)
		assert.Nil(t, body.Officers[1].Bio)
	})

	t.Run("members by role", func(t *testing.T) {
		resp := ts.get(t, "/api/members?role=Officer")
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Members []struct {
				UserID string `json:"userId"`
			} `json:"members"`
			Freshness string `json:"freshness"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "fresh", body.Freshness)
		require.Len(t, body.Members, 2)
		assert.Equal(t, "200000000000000002", body.Members[0].UserID)
		assert.Equal(t, "200000000000000005", body.Members[1].UserID)
	})

	t.Run("roster status", func(t *testing.T) {
		resp := ts.get(t, "/api/roster/status")
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, testGuildID, body["guildId"])
		assert.Equal(t, true, body["cached"])
		assert.Equal(t, false, body["inFlight"])
		assert.Contains(t, body, "lastSuccess")
	})
}
