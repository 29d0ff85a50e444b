package users

import "errors"

// ErrDuplicate is returned when (tenant, username) or the id is taken.
var ErrDuplicate = errors.New("user already exists")
