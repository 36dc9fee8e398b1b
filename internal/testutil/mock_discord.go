package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
	"github.com/go-chi/chi/v5"

	"github.com/parsascontentcorner/guildsnapshot/internal/roster"
)

// MockDiscordServer emulates the guild, role and member REST endpoints
// for a single guild.
type MockDiscordServer struct {
	Server *httptest.Server

	GuildCalls  atomic.Int32
	RoleCalls   atomic.Int32
	MemberCalls atomic.Int32

	mu        sync.Mutex
	guild     *discordgo.Guild
	members   []*discordgo.Member
	failRoles bool
}

// discordErrorResponse mirrors Discord's JSON error body
type discordErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewMockDiscordServer creates a mock Discord API serving guild. Members are
// served in ascending id order, paged by after and limit.
func NewMockDiscordServer(guild *discordgo.Guild, members []*discordgo.Member) *MockDiscordServer {
	mds := &MockDiscordServer{guild: guild}
	mds.SetMembers(members)

	r := chi.NewRouter()
	r.Get("/api/{version}/guilds/{guildID}", mds.handleGuild)
	r.Get("/api/{version}/guilds/{guildID}/roles", mds.handleRoles)
	r.Get("/api/{version}/guilds/{guildID}/members", mds.handleMembers)

	mds.Server = httptest.NewServer(r)
	return mds
}

// Close closes the mock server.
func (mds *MockDiscordServer) Close() {
	if mds.Server != nil {
		mds.Server.Close()
	}
}

// Session returns a discordgo session whose REST calls are routed to the mock
func (mds *MockDiscordServer) Session() *discordgo.Session {
	session, _ := discordgo.New("Bot test_bot_token")
	target, _ := url.Parse(mds.Server.URL)
	session.Client = &http.Client{Transport: &rewriteTransport{target: target}}
	return session
}

// SetMembers replaces the served member list
func (mds *MockDiscordServer) SetMembers(members []*discordgo.Member) {
	sorted := make([]*discordgo.Member, len(members))
	copy(sorted, members)
	sort.SliceStable(sorted, func(i, j int) bool {
		return roster.CompareIDs(sorted[i].User.ID, sorted[j].User.ID) < 0
	})

	mds.mu.Lock()
	mds.members = sorted
	mds.mu.Unlock()
}

// FailRoles makes the roles endpoint return a server error
func (mds *MockDiscordServer) FailRoles(fail bool) {
	mds.mu.Lock()
	mds.failRoles = fail
	mds.mu.Unlock()
}

func (mds *MockDiscordServer) handleGuild(w http.ResponseWriter, r *http.Request) {
	mds.GuildCalls.Add(1)
	if chi.URLParam(r, "guildID") != mds.guild.ID {
		writeDiscordError(w, http.StatusNotFound, 10004, "Unknown Guild")
		return
	}
	writeDiscordJSON(w, mds.guild)
}

func (mds *MockDiscordServer) handleRoles(w http.ResponseWriter, r *http.Request) {
	mds.RoleCalls.Add(1)
	mds.mu.Lock()
	fail := mds.failRoles
	mds.mu.Unlock()

	if fail {
		writeDiscordError(w, http.StatusInternalServerError, 0, "Internal Server Error")
		return
	}
	if chi.URLParam(r, "guildID") != mds.guild.ID {
		writeDiscordError(w, http.StatusNotFound, 10004, "Unknown Guild")
		return
	}
	writeDiscordJSON(w, mds.guild.Roles)
}

func (mds *MockDiscordServer) handleMembers(w http.ResponseWriter, r *http.Request) {
	mds.MemberCalls.Add(1)
	if chi.URLParam(r, "guildID") != mds.guild.ID {
		writeDiscordError(w, http.StatusNotFound, 10004, "Unknown Guild")
		return
	}

	after := r.URL.Query().Get("after")
	limit := 1
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeDiscordError(w, http.StatusBadRequest, 50035, "Invalid Form Body")
			return
		}
		limit = n
	}

	mds.mu.Lock()
	page := make([]*discordgo.Member, 0, limit)
	for _, m := range mds.members {
		if len(page) == limit {
			break
		}
		if roster.CompareIDs(m.User.ID, after) > 0 {
			page = append(page, m)
		}
	}
	mds.mu.Unlock()

	writeDiscordJSON(w, page)
}

func writeDiscordJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeDiscordError(w http.ResponseWriter, status, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(discordErrorResponse{Code: code, Message: message})
}

// rewriteTransport sends every request to target, keeping path and query
type rewriteTransport struct {
	target *url.URL
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = t.target.Scheme
	out.URL.Host = t.target.Host
	out.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(out)
}
