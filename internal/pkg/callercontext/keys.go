package callercontext

// Shared Locals keys used across controllers and middlewares
const (
	KeyCallerContext = "CALLER_CONTEXT"
	KeyCallerID      = "caller_id"
	KeyAuthenticated = "authenticated"
)

// HeaderCallerID names the calling workflow or system.
const HeaderCallerID = "X-Caller-ID"
