package authapi

import (
	"predixa/cmd/identity"
)

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      string(u.Role),
		OrgID:     u.OrgID,
		CreatedAt: u.CreatedAt,
	}
}
