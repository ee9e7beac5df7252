package auth

// Identity is the authenticated user behind a connection.
type Identity struct {
	UserId   string
	Username string
	FullName string
	Image    string
}

// Anonymous is the identity of connections to public channels that presented
// no credential.
var Anonymous = Identity{}

func (i *Identity) IsAnonymous() bool {
	return i.UserId == ""
}

func (i *Identity) apply(profile Profile) {
	if profile.Username != "" {
		i.Username = profile.Username
	}
	if profile.FullName != "" {
		i.FullName = profile.FullName
	}
	i.Image = profile.Image
}
