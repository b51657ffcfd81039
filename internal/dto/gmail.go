package dto

// GmailAuthURLResponse carries the consent screen URL.
type GmailAuthURLResponse struct {
	URL string `json:"url"`
}

// GmailTokenRequest exchanges an authorization code for stored credentials.
type GmailTokenRequest struct {
	Code  string `json:"code" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

// GmailTokenResponse confirms the mailbox connection.
type GmailTokenResponse struct {
	UserID    string `json:"user_id"`
	Connected bool   `json:"connected"`
}
