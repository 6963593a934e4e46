package domain

import "context"

// Geo holds the coordinates of an address as decimal strings, exactly as the
// remote API returns them.
type Geo struct {
	Lat string `json:"lat"`
	Lng string `json:"lng"`
}

// Address is the postal address of a user.
type Address struct {
	Street  string `json:"street"`
	Suite   string `json:"suite"`
	City    string `json:"city"`
	Zipcode string `json:"zipcode"`
	Geo     Geo    `json:"geo"`
}

// Company holds organization info for a user.
type Company struct {
	Name        string `json:"name"`
	CatchPhrase string `json:"catchPhrase"`
	BS          string `json:"bs"`
}

// User is a directory record. It is never modified after the gateway has
// decorated it; Avatar is derived from the record's position in the fetch
// result and never comes from the server.
type User struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Address  Address `json:"address"`
	Phone    string  `json:"phone"`
	Website  string  `json:"website"`
	Company  Company `json:"company"`
	Avatar   string  `json:"avatar"`
}

// GatewayResult wraps a successful gateway payload with the upstream HTTP
// status and an optional human-readable message.
type GatewayResult[T any] struct {
	Data    T      `json:"data"`
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
}

// UserGateway is the only component that talks to the remote user API.
// Every failure it returns is a *GatewayError.
type UserGateway interface {
	FetchAll(ctx context.Context) (*GatewayResult[[]User], error)
	FetchByID(ctx context.Context, id int) (*GatewayResult[User], error)
}
