package models

import "errors"

// Domain outcomes of the registrars. Services wrap these with a
// domain-errors code, so callers can match either way.
var (
	ErrRecordAlreadyExists       = errors.New("record already exists")
	ErrInstitutionNotWhitelisted = errors.New("institution is not whitelisted")
)
