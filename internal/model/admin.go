package model

// Admin is a privileged identity authorized to run administrative
// commands over the message channel and to log in to the HTTP API.
// The password hash is only set for admins using the HTTP API; message
// commands are authorized by username alone.
//
// Fields:
//  ID           – primary key identifier.
//  Username     – unique lower-cased username.
//  PasswordHash – bcrypt hash for HTTP API login, nil otherwise.
type Admin struct {
	ID           uint64  // admins.id
	Username     string  // admins.username
	PasswordHash *string // admins.password_hash (nullable)
}
