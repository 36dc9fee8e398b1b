// Package integration exercises the snapshot pipeline end to end: a mock
// Discord REST API behind a real discordgo session, the paged fetcher, the
// synchronizer, PostgreSQL and the read API.
package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/guildsnapshot/internal/database"
	"github.com/parsascontentcorner/guildsnapshot/internal/discord"
	httpserver "github.com/parsascontentcorner/guildsnapshot/internal/http"
	"github.com/parsascontentcorner/guildsnapshot/internal/roster"
	"github.com/parsascontentcorner/guildsnapshot/internal/snapshot"
	"github.com/parsascontentcorner/guildsnapshot/internal/testutil"
)

const (
	testGuildID   = "100000000000000001"
	officerRoleID = "110000000000000001"
	veteranRoleID = "110000000000000002"
	pageSize      = 3
)

// testSuite wires every component against one container and one mock API
type testSuite struct {
	db        *database.DB
	discord   *testutil.MockDiscordServer
	sync      *snapshot.Synchronizer
	api       *httptest.Server
	accolades map[string]int64 // role id -> accolade id
	cleanup   func()
}

func testGuild() *discordgo.Guild {
	return &discordgo.Guild{
		ID:      testGuildID,
		Name:    "Test Guild",
		OwnerID: "999999999999999999",
		Roles: []*discordgo.Role{
			testutil.GenerateDiscordRole(testGuildID, "@everyone", 0, discordgo.PermissionViewChannel),
			testutil.GenerateDiscordRole(officerRoleID, "Officer", 5, discordgo.PermissionKickMembers),
			testutil.GenerateDiscordRole(veteranRoleID, "Veteran", 1, 0),
		},
	}
}

// testMembers returns seven members: ids 2..8 with an 18 digit width.
// Members 2 and 5 are officers, 3, 4 and 8 are veterans.
func testMembers() []*discordgo.Member {
	id := func(n int) string { return fmt.Sprintf("2000000000000000%02d", n) }
	return []*discordgo.Member{
		testutil.GenerateDiscordMember(id(2), "Captain", officerRoleID),
		testutil.GenerateDiscordMember(id(3), "", veteranRoleID),
		testutil.GenerateDiscordMember(id(4), "Old Hand", veteranRoleID),
		testutil.GenerateDiscordMember(id(5), "Lieutenant", officerRoleID, veteranRoleID),
		testutil.GenerateDiscordMember(id(6), ""),
		testutil.GenerateDiscordMember(id(7), "Newcomer"),
		testutil.GenerateDiscordMember(id(8), "", veteranRoleID),
	}
}

func setupTestSuite(t *testing.T) *testSuite {
	t.Helper()
	ctx := context.Background()

	db, dbCleanup, err := testutil.SetupTestDB(ctx)
	require.NoError(t, err)

	accolades, err := testutil.SeedAccolades(ctx, db, map[string]string{
		veteranRoleID: "Veteran",
		officerRoleID: "Officer Corps",
	})
	require.NoError(t, err)
	byRole := make(map[string]int64, len(accolades))
	for _, a := range accolades {
		byRole[a.RoleID] = a.ID
	}

	mock := testutil.NewMockDiscordServer(testGuild(), testMembers())
	logger := zap.NewNop()

	provider := discord.NewProvider(mock.Session(), 10*time.Second, logger)
	fetcher := roster.NewFetcher(provider, logger)
	cache := roster.NewCache(provider, logger, roster.WithDefaults(time.Minute, time.Minute))

	sync := snapshot.NewSynchronizer(
		snapshot.Config{GuildID: testGuildID, BatchSize: pageSize, MaxBatches: 10},
		provider, fetcher, db, logger,
	)

	handlers := httpserver.NewHandlers(db, roster.NewDirectory(cache, provider, provider, logger), testGuildID, logger)
	api := httptest.NewServer(httpserver.NewRouter(handlers, nil, logger))

	return &testSuite{
		db:        db,
		discord:   mock,
		sync:      sync,
		api:       api,
		accolades: byRole,
		cleanup: func() {
			api.Close()
			mock.Close()
			dbCleanup()
		},
	}
}

func (ts *testSuite) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.api.URL + path)
	require.NoError(t, err)
	return resp
}
