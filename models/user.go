package models

// User is the typed view of a user document as produced by the sample
// generator. The service itself treats users as free-form beyond UserID.
type User struct {
	UserID    string `json:"userID"`
	LastName  string `json:"lastName"`
	FirstName string `json:"firstName"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state"`
	Zip       string `json:"zip"`
}
