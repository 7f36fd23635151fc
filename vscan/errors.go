package vscan

import "github.com/pkg/errors"

// Error kinds returned by scans, compare with errors.Is
var (
	ErrInvalidTarget          = errors.New("invalid target")
	ErrInvalidMode            = errors.New("invalid scan mode")
	ErrEngineUnavailable      = errors.New("engine unavailable")
	ErrEngineReadinessTimeout = errors.New("engine readiness timeout")
	ErrScanAborted            = errors.New("scan aborted")
	ErrDatabaseUnavailable    = errors.New("pattern database unavailable")
	ErrArtifactUnreadable     = errors.New("artifact unreadable")
)

var errorKinds = []error{
	ErrInvalidTarget,
	ErrInvalidMode,
	ErrEngineUnavailable,
	ErrEngineReadinessTimeout,
	ErrScanAborted,
	ErrDatabaseUnavailable,
	ErrArtifactUnreadable,
}

// KindOf returns the error kind of err, or nil if it is not a scan error
func KindOf(err error) error {
	for _, kind := range errorKinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// wrapped attaches a kind to an underlying cause so both match errors.Is
type wrapped struct {
	kind  error
	cause error
}

func (w *wrapped) Error() string { return w.kind.Error() + ": " + w.cause.Error() }

func (w *wrapped) Unwrap() error { return w.cause }

func (w *wrapped) Is(target error) bool { return target == w.kind }

// WithKind tags cause with one of the scan error kinds
func WithKind(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return &wrapped{kind: kind, cause: cause}
}
