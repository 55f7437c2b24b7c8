package config

import "errors"

var (
	errMissingParticipantName  = errors.New("ParticipantName is required")
	errUnsupportedSchemaVersion = errors.New("SchemaVersion is newer than this build supports")
	errNegativeConnectAttempts = errors.New("Middleware.ConnectAttempts must not be negative")
	errMissingHost             = errors.New("registry URI is missing a host:port")
	errMissingPath             = errors.New("local registry URI is missing a socket path")
	errUnknownScheme           = errors.New("unrecognized URI scheme")
)
