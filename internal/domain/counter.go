package domain

// Counter is a staffed service point. Staff select one before calling a token.
type Counter struct {
	ID        int64
	Name      string
	OfficerID *string
	IsActive  bool
	Services  []ServiceType
}

// Serves reports whether the counter handles the given service type.
func (c Counter) Serves(s ServiceType) bool {
	if len(c.Services) == 0 {
		return true
	}
	for _, svc := range c.Services {
		if svc == s {
			return true
		}
	}
	return false
}
