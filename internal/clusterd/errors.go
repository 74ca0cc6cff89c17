package clusterd

import (
	"errors"
	"fmt"
	"strings"
)

// Kind groups clusterd errors by how callers are expected to react.
type Kind int

const (
	KindUnclassified Kind = iota
	KindTransportUnavailable
	KindAlreadyExists
	KindNotFound
	KindInvalidOperation
)

func (k Kind) String() string {
	switch k {
	case KindTransportUnavailable:
		return "transport-unavailable"
	case KindAlreadyExists:
		return "already-exists"
	case KindNotFound:
		return "not-found"
	case KindInvalidOperation:
		return "invalid-operation"
	default:
		return "unclassified"
	}
}

var (
	ErrServiceUnavailable = errors.New("clusterd service unavailable")
	ErrAlreadyExists      = errors.New("already exists")
	ErrNotFound           = errors.New("not found")
	ErrInvalidOperation   = errors.New("invalid operation")

	ErrNotInitialized        = fmt.Errorf("%w: Sunbeam Cluster not initialized", ErrServiceUnavailable)
	ErrNodeAlreadyExists     = errors.New("node already exists")
	ErrNodeNotFound          = errors.New("node does not exist")
	ErrNodeJoin              = errors.New("failed to join node to cluster")
	ErrTokenAlreadyGenerated = errors.New("token already generated for node")
	ErrTokenNotFound         = errors.New("token not found")
	ErrLastNodeRemoval       = errors.New("cannot remove the last cluster member")
	ErrAlreadyBootstrapped   = errors.New("cluster already bootstrapped")
	ErrConfigItemNotFound    = errors.New("config item not found")
	ErrJujuUserNotFound      = errors.New("juju user not found")
	ErrManifestNotFound      = errors.New("manifest not found")
	ErrManifestAlreadyExists = errors.New("manifest already exists")
)

type phrase struct {
	text string
	kind Kind
	err  error
}

// Order matters: the first matching phrase wins.
var knownPhrases = []phrase{
	{"remote with name", KindAlreadyExists, ErrNodeAlreadyExists},
	{"No remote exists with the given name", KindNotFound, ErrNodeNotFound},
	{"Node not found", KindNotFound, ErrNodeNotFound},
	{"Failed to join cluster with the given join token", KindInvalidOperation, ErrNodeJoin},
	{"UNIQUE constraint failed: internal_token_records.name", KindAlreadyExists, ErrTokenAlreadyGenerated},
	{"Daemon not yet initialized", KindInvalidOperation, ErrNotInitialized},
	{"InternalTokenRecord not found", KindNotFound, ErrTokenNotFound},
	{"there are no remaining non-pending members", KindInvalidOperation, ErrLastNodeRemoval},
	{"already running", KindAlreadyExists, ErrAlreadyBootstrapped},
	{"ConfigItem not found", KindNotFound, ErrConfigItemNotFound},
	{"ManifestItem not found", KindNotFound, ErrManifestNotFound},
	{`"manifest" entry already exists`, KindAlreadyExists, ErrManifestAlreadyExists},
}

// Classify maps a remote error text to its kind and sentinel error.
// Unknown text returns KindUnclassified and a nil error.
func Classify(errorText string) (Kind, error) {
	for _, p := range knownPhrases {
		if strings.Contains(errorText, p.text) {
			return p.kind, p.err
		}
	}
	return KindUnclassified, nil
}

// Error is a classified clusterd failure.
type Error struct {
	Kind       Kind
	Err        error
	Message    string
	StatusCode int
	cause      error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Err, e.cause}
	}
	return []error{e.Err}
}

// Is matches the kind-level sentinels in addition to the wrapped ones.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrAlreadyExists:
		return e.Kind == KindAlreadyExists
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrInvalidOperation:
		return e.Kind == KindInvalidOperation
	case ErrServiceUnavailable:
		return e.Kind == KindTransportUnavailable
	}
	return false
}

// HTTPError is a remote failure whose text matched no known phrase.
type HTTPError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return "clusterd request failed: " + e.Status
	}
	return fmt.Sprintf("clusterd request failed: %s: %s", e.Status, e.Message)
}

// KindOf returns the kind of a clusterd error, or KindUnclassified.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnclassified
}
