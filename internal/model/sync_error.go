package model

// SyncError records a campaign that could not be synced.
type SyncError struct {
	Campaign string `json:"campaign"`
	Code     string `json:"code"`
	Error    string `json:"error"`
	At       string `json:"at"`
}
