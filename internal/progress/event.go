package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart         Stage = "RUN_START"
	StageRunDone          Stage = "RUN_DONE"
	StageRunError         Stage = "RUN_ERROR"
	StageAddrStart        Stage = "ADDR_START"
	StageAddrDone         Stage = "ADDR_DONE"
	StageArtifactUploaded Stage = "ARTIFACT_UPLOADED"
	StageArtifactFailed   Stage = "ARTIFACT_FAILED"
)

// Result classifies how processing one address ended.
type Result string

// Supported per-address results.
const (
	ResultSuccess      Result = "success"
	ResultSoftFailure  Result = "soft_failure"
	ResultSessionFatal Result = "session_fatal"
)

// Event captures a single milestone of an archive run.
type Event struct {
	// RunID uniquely identifies a run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which run, address, or artifact milestone occurred.
	Stage Stage
	// Address scopes address events to the lot-number address being fetched.
	Address string
	// Result classifies ADDR_DONE events.
	Result Result
	// Archived reports whether every document fetched for an ADDR_DONE
	// address reached storage. An address can be retrieved but not
	// archived when uploads fail or no download was detected.
	Archived bool
	// Artifact names the object for upload events.
	Artifact string
	// Bytes carries the artifact size for upload events.
	Bytes int64
	// Planned carries the chunk size selected for this run on RUN_START.
	Planned int64
	// Outcome carries the final run classification on RUN_DONE.
	Outcome string
	// Dur captures execution latency for address and run completions.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunError:
	case StageRunDone:
		if e.Outcome == "" {
			return errors.New("run done requires outcome")
		}
	case StageAddrStart:
		if e.Address == "" {
			return errors.New("addr start requires address")
		}
	case StageAddrDone:
		if e.Address == "" {
			return errors.New("addr done requires address")
		}
		switch e.Result {
		case ResultSuccess, ResultSoftFailure, ResultSessionFatal:
		default:
			return fmt.Errorf("addr done has unknown result %q", e.Result)
		}
	case StageArtifactUploaded, StageArtifactFailed:
		if e.Artifact == "" {
			return errors.New("artifact events require an artifact name")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Planned < 0 {
		return errors.New("planned count must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for sinks and reports.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
