package domain

// ProfileRole enumerates identity-provider roles relevant to the queue.
type ProfileRole string

const (
	RoleCitizen ProfileRole = "citizen"
	RoleOfficer ProfileRole = "officer"
	RoleAdmin   ProfileRole = "admin"
)

// Profile is the citizen/officer record kept by the identity collaborator.
// The queue core only reads it, mainly to resolve notification contacts.
type Profile struct {
	ID       string
	UserID   string
	FullName string
	Phone    string
	Role     ProfileRole
}
