package controller

import (
	"net/http"

	domainErrors "github.com/dbakare/gromart/internal/domain/errors"
	"github.com/dbakare/gromart/internal/domain/shoppinglist"
	"github.com/google/uuid"
)

// Identity comes from the gateway in front of this service: it terminates
// auth and forwards the verified principal in headers.
const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"
)

func callerID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.Header.Get(headerUserID))
	if err != nil {
		return uuid.Nil, domainErrors.ErrUnauthorized
	}
	return id, nil
}

func callerActor(r *http.Request) (shoppinglist.Actor, error) {
	id, err := callerID(r)
	if err != nil {
		return shoppinglist.Actor{}, err
	}
	role := shoppinglist.ActorRole(r.Header.Get(headerUserRole))
	switch role {
	case shoppinglist.RoleCustomer, shoppinglist.RoleAgent:
	default:
		role = shoppinglist.RoleCustomer
	}
	return shoppinglist.Actor{ID: id, Role: role}, nil
}
