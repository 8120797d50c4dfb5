package domain

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// RoomAdmin is the push room reserved for privileged listeners.
const RoomAdmin = "admin"
