package auth

// ValidationError reports malformed or policy-violating input.
type ValidationError struct {
	Message string
	Details string // Aggregated policy reasons, when any.
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError reports a unique-constraint collision on registration.
type ConflictError struct {
	Field string // "email" or "username".
}

func (e *ConflictError) Error() string {
	return "User with this " + e.Field + " already exists"
}

// UnauthorizedError covers bad credentials and unusable tokens.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string { return e.Message }

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }
