package handlers

import (
	"net/http"
	"time"
)

type transactionView struct {
	ID           string    `json:"id"`
	VideoID      string    `json:"video_id,omitempty"`
	Type         string    `json:"type"`
	Amount       float64   `json:"amount"`
	BalanceAfter float64   `json:"balance_after"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreditsBalance returns the caller's current credit balance.
func (a *App) CreditsBalance(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	user, err := a.Users.GetByID(r.Context(), userID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"user_id": user.ID,
		"balance": user.CreditsBalance.Float(),
		"tier":    string(user.Tier),
	})
}

// CreditsTransactions returns the caller's ledger history newest first.
func (a *App) CreditsTransactions(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}

	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	entries, err := a.Credits.Transactions(r.Context(), userID, limit, offset)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	items := make([]transactionView, 0, len(entries))
	for _, e := range entries {
		items = append(items, transactionView{
			ID:           e.ID,
			VideoID:      e.JobID,
			Type:         string(e.Type),
			Amount:       e.Amount.Float(),
			BalanceAfter: e.BalanceAfter.Float(),
			Description:  e.Description,
			CreatedAt:    e.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{
		"items":  items,
		"limit":  limit,
		"offset": offset,
	})
}
