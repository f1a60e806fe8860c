package common

const (
	// AuthorizationHeaderName is the HTTP header (and lower-cased gRPC metadata key)
	// carrying the bearer access token.
	AuthorizationHeaderName = "Authorization"

	// BearerPrefix precedes the access token inside the authorization header.
	BearerPrefix = "Bearer "
)
