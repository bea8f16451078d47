package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/api/middleware"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/app/service"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/common"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/domain/model"
)

type LeaderboardHandler struct {
	leaderboardService *service.LeaderboardService
	submissionService  *service.SubmissionService
	queryService       *service.QueryService
}

func NewLeaderboardHandler(ls *service.LeaderboardService, ss *service.SubmissionService, qs *service.QueryService) *LeaderboardHandler {
	return &LeaderboardHandler{
		leaderboardService: ls,
		submissionService:  ss,
		queryService:       qs,
	}
}

func (h *LeaderboardHandler) RegisterRoutes(r chi.Router) {
	// Public reads
	r.Get("/", h.listLeaderboards)
	r.Get("/{leaderboardID}", h.getLeaderboard)
	r.Get("/{leaderboardID}/rankings", h.getRankings)
	r.Get("/{leaderboardID}/rankings/top", h.getTopRankings)
	r.Get("/{leaderboardID}/history", h.getHistory)
	r.Get("/{leaderboardID}/statistics", h.getStatistics)

	// Authenticated user routes
	r.Group(func(userRouter chi.Router) {
		userRouter.Use(middleware.Authenticator)
		userRouter.Post("/{leaderboardID}/scores", h.submitScore)
		userRouter.Get("/{leaderboardID}/rankings/around-me", h.getRankingsAroundMe)
		userRouter.Get("/{leaderboardID}/rankings/position", h.getMyPosition)
	})

	// Admin routes
	r.Group(func(adminRouter chi.Router) {
		adminRouter.Use(middleware.Authenticator)
		adminRouter.Use(middleware.AdminOnly)
		adminRouter.Post("/", h.createLeaderboard)
		adminRouter.Patch("/{leaderboardID}", h.updateLeaderboard)
		adminRouter.Delete("/{leaderboardID}", h.deleteLeaderboard)
		adminRouter.Delete("/{leaderboardID}/hard", h.hardDeleteLeaderboard)
		adminRouter.Post("/{leaderboardID}/recalculate", h.recalculate)
		adminRouter.Post("/{leaderboardID}/reset", h.reset)
		adminRouter.Post("/{leaderboardID}/snapshot", h.createSnapshot)
	})
}

func (h *LeaderboardHandler) createLeaderboard(w http.ResponseWriter, r *http.Request) {
	var req service.CreateLeaderboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	lb, err := h.leaderboardService.Create(r.Context(), req)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, lb)
}

func (h *LeaderboardHandler) listLeaderboards(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	category := r.URL.Query().Get("category")

	leaderboards, total, err := h.leaderboardService.List(r.Context(), page, limit, category)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}

	type listResponse struct {
		Leaderboards []model.Leaderboard `json:"leaderboards"`
		Total        int                 `json:"total"`
	}
	common.RespondWithJSON(w, http.StatusOK, listResponse{Leaderboards: leaderboards, Total: total})
}

func (h *LeaderboardHandler) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := h.leaderboardService.Get(r.Context(), chi.URLParam(r, "leaderboardID"))
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, lb)
}

func (h *LeaderboardHandler) updateLeaderboard(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateLeaderboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	lb, err := h.leaderboardService.Update(r.Context(), chi.URLParam(r, "leaderboardID"), req)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, lb)
}

func (h *LeaderboardHandler) deleteLeaderboard(w http.ResponseWriter, r *http.Request) {
	if err := h.leaderboardService.SoftDelete(r.Context(), chi.URLParam(r, "leaderboardID")); err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LeaderboardHandler) hardDeleteLeaderboard(w http.ResponseWriter, r *http.Request) {
	if err := h.leaderboardService.HardDelete(r.Context(), chi.URLParam(r, "leaderboardID")); err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *LeaderboardHandler) submitScore(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}
	username, _ := middleware.GetUsernameFromContext(r.Context())

	var req service.SubmitScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return
	}

	entry, err := h.submissionService.Submit(r.Context(), chi.URLParam(r, "leaderboardID"), userID, username, req)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, entry)
}

func (h *LeaderboardHandler) getRankings(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	tf := model.TimeFrame(r.URL.Query().Get("timeFrame"))

	rankings, err := h.queryService.PaginatedRankings(r.Context(), chi.URLParam(r, "leaderboardID"), page, limit, tf)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, rankings)
}

func (h *LeaderboardHandler) getTopRankings(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.queryService.TopRankings(r.Context(), chi.URLParam(r, "leaderboardID"), limit)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, entries)
}

func (h *LeaderboardHandler) getRankingsAroundMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}
	rng, _ := strconv.Atoi(r.URL.Query().Get("range"))

	result, err := h.queryService.RankingsAroundUser(r.Context(), chi.URLParam(r, "leaderboardID"), userID, rng)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, result)
}

func (h *LeaderboardHandler) getMyPosition(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}

	position, err := h.queryService.UserPosition(r.Context(), chi.URLParam(r, "leaderboardID"), userID)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, position)
}

func (h *LeaderboardHandler) getHistory(w http.ResponseWriter, r *http.Request) {
	snapshotType := model.SnapshotType(r.URL.Query().Get("type"))

	snapshots, err := h.leaderboardService.GetHistory(r.Context(), chi.URLParam(r, "leaderboardID"), snapshotType)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, snapshots)
}

func (h *LeaderboardHandler) getStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.leaderboardService.GetStatistics(r.Context(), chi.URLParam(r, "leaderboardID"))
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, stats)
}

func (h *LeaderboardHandler) recalculate(w http.ResponseWriter, r *http.Request) {
	if err := h.leaderboardService.Recalculate(r.Context(), chi.URLParam(r, "leaderboardID")); err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "rankings recalculated"})
}

func (h *LeaderboardHandler) reset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "leaderboardID")
	if err := h.leaderboardService.Reset(r.Context(), id, model.SnapshotManual); err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]string{"status": "leaderboard reset"})
}

func (h *LeaderboardHandler) createSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshotType := model.SnapshotType(r.URL.Query().Get("type"))
	if snapshotType == "" {
		snapshotType = model.SnapshotManual
	}

	snapshot, err := h.leaderboardService.CreateSnapshot(r.Context(), chi.URLParam(r, "leaderboardID"), snapshotType)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, snapshot)
}
