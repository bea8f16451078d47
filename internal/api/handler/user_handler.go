package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/api/middleware"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/app/service"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/common"
	"github.com/MindFlowInteractive/logiquest-leaderboard/internal/domain/model"
)

type UserHandler struct {
	leaderboardService *service.LeaderboardService
}

func NewUserHandler(ls *service.LeaderboardService) *UserHandler {
	return &UserHandler{leaderboardService: ls}
}

func (h *UserHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(userRouter chi.Router) {
		userRouter.Use(middleware.Authenticator)
		userRouter.Get("/{userID}/rankings", h.getUserRankings)
	})
}

// getUserRankings returns the target user's entries across all active
// leaderboards. Users may only view their own; admins may view anyone's.
func (h *UserHandler) getUserRankings(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "userID")
	callerID, _ := middleware.GetUserIDFromContext(r.Context())
	callerRole, _ := middleware.GetUserRoleFromContext(r.Context())

	if targetID != callerID && callerRole != model.RoleAdmin {
		common.RespondWithError(w, http.StatusForbidden, "Cannot view another user's rankings")
		return
	}

	rankings, err := h.leaderboardService.GetUserRankings(r.Context(), targetID)
	if err != nil {
		common.RespondWithError(w, common.HTTPStatusFromError(err), err.Error())
		return
	}
	common.RespondWithJSON(w, http.StatusOK, rankings)
}
