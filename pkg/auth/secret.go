package auth

// Secret is a string that redacts itself in String, GoString and
// MarshalText so signing keys never reach logs or serialized config.
// Use [Secret.Value] only where the raw bytes are needed.
type Secret string

const secretRedacted = "[REDACTED]"

func (s Secret) String() string { return secretRedacted }

func (s Secret) GoString() string { return secretRedacted }

// Value returns the raw secret.
func (s Secret) Value() string { return string(s) }

func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }
