package types

import "roomchat/internal/models"

type CreateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"isPrivate"`
}

type AddMemberRequest struct {
	MemberID string `json:"memberId"`
}

type HistoryResponse struct {
	Messages []*models.Message `json:"messages"`
	Total    int               `json:"total"`
	Skip     int               `json:"skip"`
	Limit    int               `json:"limit"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
