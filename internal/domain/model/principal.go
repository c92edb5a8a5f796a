package model

// Principal is the authenticated caller of an API request.
type Principal struct {
	Subject string `json:"sub"`
	Email   string `json:"email,omitempty"`
}
