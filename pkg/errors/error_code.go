package errors

// Numeric error codes, following the 4xxx (request), 5xxx (internal),
// 6xxx (dependency), 7xxx (bootstrap), 8xxx (remote service) bands.
const (
	RequestParameterInvalid = 4001
	RequestDataExists       = 4002
	AuthFailed              = 4003
	RequestDataNotExisted   = 4004
	PermissionDeny          = 4005
	InvalidOperation        = 4016
	InvalidArgument         = 4017

	InternalError     = 5000
	InvalidDataError  = 5001
	CodeStoreError    = 5002
	ServiceUnavailable = 5003

	CodeOrchestratorError = 6002
	CodeCacheError        = 6003
	CodeQueueFull         = 6004
	CodeCircuitOpen       = 6005

	CodeInitializeError = 7001
	CodeLackOfConfig    = 7002

	CodeRemoteServiceError = 8001
	CodeInvalidArgument    = 8002
)
