// Package kernelerr defines the closed RejectReason taxonomy (spec 4.A)
// and the fatal/local error kinds from the error handling design (spec 7).
// Every rejected action maps to exactly one RejectReason.
package kernelerr

import (
	"errors"
	"fmt"

	"github.com/kestrel-sim/worldkernel/internal/resourcemodel"
)

// ReasonCode enumerates the closed RejectReason sum type.
type ReasonCode int

const (
	InsufficientResource ReasonCode = iota
	AgentNotAtLocation
	AgentAlreadyAtLocation
	MoveDistanceExceeded
	FacilityNotFound
	FacilityAlreadyExists
	LocationNotFound
	RuleDenied
	ThermalOverload
	AgentShutdown
	SocialFactNotFound
	Unauthorized
	ValidationError
	ConflictLoss
	ChunkGenerationSkipped
)

func (r ReasonCode) String() string {
	switch r {
	case InsufficientResource:
		return "InsufficientResource"
	case AgentNotAtLocation:
		return "AgentNotAtLocation"
	case AgentAlreadyAtLocation:
		return "AgentAlreadyAtLocation"
	case MoveDistanceExceeded:
		return "MoveDistanceExceeded"
	case FacilityNotFound:
		return "FacilityNotFound"
	case FacilityAlreadyExists:
		return "FacilityAlreadyExists"
	case LocationNotFound:
		return "LocationNotFound"
	case RuleDenied:
		return "RuleDenied"
	case ThermalOverload:
		return "ThermalOverload"
	case AgentShutdown:
		return "AgentShutdown"
	case SocialFactNotFound:
		return "SocialFactNotFound"
	case Unauthorized:
		return "Unauthorized"
	case ValidationError:
		return "ValidationError"
	case ConflictLoss:
		return "ConflictLoss"
	case ChunkGenerationSkipped:
		return "ChunkGenerationSkipped"
	default:
		return "Unknown"
	}
}

// Reject is the concrete value of a RejectReason: a reason code plus
// whatever field/kind/note qualifies it. At most one of Resource/Field/Note
// is populated, depending on Code; rejects built by NewSimple carry none.
type Reject struct {
	Code     ReasonCode
	Resource resourcemodel.Kind
	Field    string
	Note     string
}

func (r Reject) Error() string {
	switch r.Code {
	case InsufficientResource:
		return fmt.Sprintf("insufficient resource: %s", r.Resource)
	case ValidationError:
		return fmt.Sprintf("validation error: field %q", r.Field)
	case RuleDenied:
		return fmt.Sprintf("rule denied: %s", r.Note)
	case ConflictLoss:
		return fmt.Sprintf("conflict: %s", r.Note)
	case ChunkGenerationSkipped:
		return fmt.Sprintf("chunk generation skipped: %s", r.Note)
	default:
		return r.Code.String()
	}
}

func NewInsufficientResource(kind resourcemodel.Kind) Reject {
	return Reject{Code: InsufficientResource, Resource: kind}
}

func NewValidationError(field string) Reject {
	return Reject{Code: ValidationError, Field: field}
}

func NewRuleDenied(note string) Reject {
	return Reject{Code: RuleDenied, Note: note}
}

func NewConflictLoss(conflictKey string) Reject {
	return Reject{Code: ConflictLoss, Note: conflictKey}
}

func NewChunkGenerationSkipped(reason string) Reject {
	return Reject{Code: ChunkGenerationSkipped, Note: reason}
}

func NewSimple(code ReasonCode) Reject {
	return Reject{Code: code}
}

// AsReject recovers a Reject from a wrapped error chain, the idiom used
// throughout the kernel instead of typed-exception hierarchies.
func AsReject(err error) (Reject, bool) {
	var r Reject
	if errors.As(err, &r) {
		return r, true
	}
	return Reject{}, false
}

// Fatal error sentinels (spec 7): these abort a tick or a replay rather
// than rejecting a single action.
var (
	ErrReplayConflict   = errors.New("replay conflict: recorded chunk generation does not reproduce")
	ErrSchemaIncompatible = errors.New("schema incompatible: snapshot schema_version newer than supported")
	ErrPersistenceIO    = errors.New("persistence I/O failure")
)
