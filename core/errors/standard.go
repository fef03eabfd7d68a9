package errors

// Standard error definitions shared across packages

// Lifecycle errors
var (
	ErrNotInitialized = New(CodeNotInitialized, CategoryLifecycle, "service not initialized")
	ErrNotRunning     = New(CodeNotRunning, CategoryLifecycle, "hub is not running")
	ErrAlreadyRunning = New(CodeAlreadyRunning, CategoryLifecycle, "hub already running")
	ErrMissingWiring  = New(CodeMissingWiring, CategoryLifecycle, "hub requires a service and a registry before start")
)

// Notification validation errors
var (
	ErrInvalidNotification = New(CodeInvalidNotification, CategoryValidation, "notification must have a title or a message")
	ErrInvalidPriority     = New(CodeInvalidPriority, CategoryValidation, "unknown notification priority")
	ErrInvalidExpiry       = New(CodeInvalidExpiry, CategoryValidation, "expiry must be after creation time")
	ErrNotFound            = New(CodeNotFound, CategoryValidation, "notification not found")
	ErrRateLimited         = New(CodeRateLimited, CategoryRateLimit, "notification rate limit exceeded")
	ErrDuplicate           = New(CodeDuplicate, CategoryValidation, "duplicate notification suppressed")
)

// Interaction errors
var (
	ErrInvalidInteraction  = New(CodeInvalidInteraction, CategoryInteraction, "interaction requires a sender and a recipient")
	ErrInteractionNotFound = New(CodeNotFound, CategoryInteraction, "interaction not found")
	ErrNotRecipient        = New(CodeNotRecipient, CategoryInteraction, "only the recipient may respond to an interaction")
	ErrAlreadyResponded    = New(CodeAlreadyResponded, CategoryInteraction, "interaction already responded to")
	ErrUnknownIntent       = New(CodeUnknownIntent, CategoryInteraction, "unknown notification intent")
)

// Storage and queue errors
var (
	ErrStorageError = New(CodeStorageError, CategoryStorage, "storage operation failed")
	ErrQueueFull    = New(CodeQueueFull, CategoryQueue, "queue is full")
	ErrQueueClosed  = New(CodeQueueClosed, CategoryQueue, "queue is closed")
)

// Configuration errors
var (
	ErrInvalidConfig = New(CodeInvalidConfig, CategoryConfig, "invalid configuration")
	ErrMissingConfig = New(CodeMissingConfig, CategoryConfig, "missing required configuration")
)
