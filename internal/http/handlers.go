package http

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/guildsnapshot/internal/database"
	"github.com/parsascontentcorner/guildsnapshot/internal/models"
)

// Store is the read side of the snapshot database
type Store interface {
	Health(ctx context.Context) error
	ListAccolades(ctx context.Context) ([]models.AccoladeDefinition, error)
	GetAccolade(ctx context.Context, id int64) (*models.AccoladeDefinition, error)
	ListAccoladeRecipients(ctx context.Context, accoladeIDs []int64) ([]models.AccoladeRecipientRow, error)
	ListOfficerProfiles(ctx context.Context) ([]models.OfficerProfileRow, error)
	ListOfficerBios(ctx context.Context, userIDs []string) (map[string]string, error)
}

// MemberDirectory serves the live roster from the member cache
type MemberDirectory interface {
	Members(ctx context.Context, guildID string, roleNames []string) ([]models.MemberRecord, models.Freshness, error)
	CacheState(guildID string) (models.RosterCacheState, bool)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	store   Store
	members MemberDirectory
	guildID string
	logger  *zap.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(store Store, members MemberDirectory, guildID string, logger *zap.Logger) *Handlers {
	return &Handlers{
		store:   store,
		members: members,
		guildID: guildID,
		logger:  logger,
	}
}

type recipientResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	SyncedAt    int64  `json:"syncedAt"`
}

type accoladeResponse struct {
	ID           int64               `json:"id"`
	RoleID       string              `json:"role_id"`
	Name         string              `json:"name"`
	Emoji        *string             `json:"emoji"`
	Description  *string             `json:"description"`
	ChannelID    *string             `json:"channel_id"`
	MessageID    *string             `json:"message_id"`
	DateAdded    int64               `json:"date_added"`
	DateModified int64               `json:"date_modified"`
	Recipients   []recipientResponse `json:"recipients"`
	SyncedAt     *int64              `json:"syncedAt"`
}

type officerResponse struct {
	UserID      string  `json:"userId"`
	Username    string  `json:"username"`
	DisplayName string  `json:"displayName"`
	RoleName    *string `json:"roleName"`
	RoleColor   *string `json:"roleColor"`
	Bio         *string `json:"bio"`
	SyncedAt    int64   `json:"syncedAt"`
}

type memberResponse struct {
	UserID      string `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

// HealthHandler reports OK while the database answers pings
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Health(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		if _, err := w.Write([]byte("database unavailable")); err != nil {
			h.logger.Error("failed to write health check response", zap.Error(err))
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		h.logger.Error("failed to write health check response", zap.Error(err))
	}
}

// ListAccoladesHandler returns every accolade with its current recipients
func (h *Handlers) ListAccoladesHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	accolades, err := h.store.ListAccolades(ctx)
	if err != nil {
		h.logger.Error("failed to load accolades", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	ids := make([]int64, 0, len(accolades))
	for _, a := range accolades {
		ids = append(ids, a.ID)
	}
	rows, err := h.store.ListAccoladeRecipients(ctx, ids)
	if err != nil {
		h.logger.Error("failed to load accolade recipients", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	byAccolade := make(map[int64][]models.AccoladeRecipientRow)
	for _, row := range rows {
		byAccolade[row.AccoladeID] = append(byAccolade[row.AccoladeID], row)
	}

	result := make([]accoladeResponse, 0, len(accolades))
	for i := range accolades {
		result = append(result, toAccoladeResponse(&accolades[i], byAccolade[accolades[i].ID]))
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"accolades": result})
}

// GetAccoladeHandler returns a single accolade with its recipients
func (h *Handlers) GetAccoladeHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "Not found")
		return
	}

	accolade, err := h.store.GetAccolade(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load accolade", zap.Int64("accolade_id", id), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	rows, err := h.store.ListAccoladeRecipients(ctx, []int64{accolade.ID})
	if err != nil {
		h.logger.Error("failed to load accolade recipients", zap.Int64("accolade_id", id), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"accolade": toAccoladeResponse(accolade, rows)})
}

// ListOfficersHandler returns the officer snapshot joined with officer bios
func (h *Handlers) ListOfficersHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	profiles, err := h.store.ListOfficerProfiles(ctx)
	if err != nil {
		h.logger.Error("failed to fetch officers", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	ids := make([]string, 0, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.UserID)
	}
	bios, err := h.store.ListOfficerBios(ctx, ids)
	if err != nil {
		h.logger.Error("failed to fetch officer bios", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	officers := make([]officerResponse, 0, len(profiles))
	var lastSyncedAt int64
	for _, p := range profiles {
		o := officerResponse{
			UserID:      p.UserID,
			Username:    p.Username,
			DisplayName: p.DisplayName,
			RoleName:    nullable(p.RoleName),
			RoleColor:   nullable(p.RoleColor),
			SyncedAt:    p.SyncedAt,
		}
		if bio, ok := bios[p.UserID]; ok && bio != "" {
			o.Bio = &bio
		}
		if p.SyncedAt > lastSyncedAt {
			lastSyncedAt = p.SyncedAt
		}
		officers = append(officers, o)
	}
	sort.SliceStable(officers, func(i, j int) bool {
		if officers[i].SyncedAt != officers[j].SyncedAt {
			return officers[i].SyncedAt > officers[j].SyncedAt
		}
		return officers[i].DisplayName < officers[j].DisplayName
	})

	var syncedAt *int64
	if lastSyncedAt > 0 {
		syncedAt = &lastSyncedAt
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"officers": officers,
		"syncedAt": syncedAt,
		"stale":    len(officers) == 0,
	})
}

// ListMembersHandler returns the cached roster, optionally filtered by
// role names given as repeated ?role= parameters
func (h *Handlers) ListMembersHandler(w http.ResponseWriter, r *http.Request) {
	roleNames := r.URL.Query()["role"]

	members, freshness, err := h.members.Members(r.Context(), h.guildID, roleNames)
	if err != nil {
		h.logger.Error("failed to list guild members",
			zap.String("guild_id", h.guildID),
			zap.Error(err),
		)
		h.writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, memberResponse{
			UserID:      m.ID,
			Username:    m.Username,
			DisplayName: m.DisplayName,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"members":   out,
		"freshness": freshness.String(),
	})
}

// RosterStatusHandler exposes the roster cache bookkeeping for the guild
func (h *Handlers) RosterStatusHandler(w http.ResponseWriter, _ *http.Request) {
	state, ok := h.members.CacheState(h.guildID)
	if !ok {
		h.writeJSON(w, http.StatusOK, map[string]any{
			"guildId": h.guildID,
			"cached":  false,
		})
		return
	}

	resp := map[string]any{
		"guildId":  h.guildID,
		"cached":   true,
		"inFlight": state.InFlight,
	}
	if !state.LastSuccess.IsZero() {
		resp["lastSuccess"] = state.LastSuccess.Unix()
	}
	if !state.LastFailure.IsZero() {
		resp["lastFailure"] = state.LastFailure.Unix()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func toAccoladeResponse(a *models.AccoladeDefinition, rows []models.AccoladeRecipientRow) accoladeResponse {
	resp := accoladeResponse{
		ID:           a.ID,
		RoleID:       a.RoleID,
		Name:         a.Name,
		Emoji:        nullable(a.Emoji),
		Description:  nullable(a.Description),
		ChannelID:    nullable(a.ChannelID),
		MessageID:    nullable(a.MessageID),
		DateAdded:    a.DateAdded,
		DateModified: a.DateModified,
		Recipients:   make([]recipientResponse, 0, len(rows)),
	}
	for _, row := range rows {
		resp.Recipients = append(resp.Recipients, recipientResponse{
			ID:          row.UserID,
			Username:    row.Username,
			DisplayName: row.DisplayName,
			SyncedAt:    row.SyncedAt,
		})
	}
	if len(resp.Recipients) > 0 {
		syncedAt := resp.Recipients[0].SyncedAt
		resp.SyncedAt = &syncedAt
	}
	return resp
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
