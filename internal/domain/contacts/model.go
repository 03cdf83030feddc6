// Package contacts fetches the full contact list from the messaging
// platform's HTTP API. The API offers no server-side filtering that helps
// here, so the client pages through the whole list with bounded retries and
// hands the complete set to the matcher.
package contacts

// ContactRecord is one entry from the messaging platform's contact list.
type ContactRecord struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Phones []string `json:"phones"`
	Email  string   `json:"email,omitempty"`
	DOB    string   `json:"dob,omitempty"` // YYYY-MM-DD when the platform exposes it
	Tags   []string `json:"tags,omitempty"`
}

// page is the wire shape of one paginated response.
type page struct {
	Contacts []ContactRecord `json:"contacts"`
	NextPage string          `json:"nextPage,omitempty"`
}
