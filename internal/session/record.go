// Package session persists per-session workflow state for the ChatMRPT web
// application. Each session is a small record of named workflow flags (plus a
// list of generated download links) addressed by a session identifier. Records
// live in one of two interchangeable backends: a Redis hash per session, or a
// JSON file per session under a local directory. The backend is chosen at
// startup; a Redis that cannot be reached degrades to the file backend so the
// service always comes up.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Known flags
// ---------------------------------------------------------------------------

// Wire names of the workflow flags carried by every session record. These are
// the only names Set accepts; the open-ended string bag the flags grew out of
// is deliberately closed off here.
const (
	FlagTPRWorkflowActive           = "tpr_workflow_active"
	FlagTPRSessionID                = "tpr_session_id"
	FlagShouldAskAnalysisPermission = "should_ask_analysis_permission"
	FlagDataLoaded                  = "data_loaded"
	FlagCSVLoaded                   = "csv_loaded"
	FlagShapefileLoaded             = "shapefile_loaded"
	FlagRiskWorkflowActive          = "risk_workflow_active"
	FlagTPRTransitionComplete       = "tpr_transition_complete"
	FlagAnalysisComplete            = "analysis_complete"
)

// Kind describes how a flag value is interpreted.
type Kind int

const (
	KindBool Kind = iota
	KindString
)

// KnownFlags maps every accepted flag name to its kind. Set rejects names
// outside this registry with ErrUnknownFlag.
var KnownFlags = map[string]Kind{
	FlagTPRWorkflowActive:           KindBool,
	FlagTPRSessionID:                KindString,
	FlagShouldAskAnalysisPermission: KindBool,
	FlagDataLoaded:                  KindBool,
	FlagCSVLoaded:                   KindBool,
	FlagShapefileLoaded:             KindBool,
	FlagRiskWorkflowActive:          KindBool,
	FlagTPRTransitionComplete:       KindBool,
	FlagAnalysisComplete:            KindBool,
}

// Internal record fields maintained by the backends. They are never flags and
// never appear in a Snapshot.
const (
	fieldPermanent = "_permanent"
	fieldSchema    = "_schema"
	fieldLinks     = "tpr_download_links"
)

// SchemaVersion is the current on-disk/in-Redis record schema. Records written
// before versioning carry no marker and are upgraded on their next write.
const SchemaVersion = 1

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// ErrUnknownFlag is returned by Set for a flag name outside KnownFlags.
var ErrUnknownFlag = errors.New("session: unknown flag")

// ErrBadSessionID is returned for session identifiers that cannot safely name
// a record (empty, or containing path metacharacters).
var ErrBadSessionID = errors.New("session: invalid session id")

// CorruptRecordError reports a record that exists in the backend but cannot be
// decoded. The offending session id is carried so operators can locate and
// remove the blob. Corrupt records are never retried and never silently
// replaced.
type CorruptRecordError struct {
	SessionID string
	Err       error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("session: corrupt record %q: %v", e.SessionID, e.Err)
}

func (e *CorruptRecordError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// State snapshot
// ---------------------------------------------------------------------------

// State is the full typed view of one session record, as returned by Snapshot
// and served by the debug inspection endpoint. A session that was never
// written snapshots to the zero State (all flags at their defaults).
type State struct {
	SessionID                   string            `json:"session_id"`
	TPRWorkflowActive           bool              `json:"tpr_workflow_active"`
	TPRSessionID                string            `json:"tpr_session_id"`
	ShouldAskAnalysisPermission bool              `json:"should_ask_analysis_permission"`
	DataLoaded                  bool              `json:"data_loaded"`
	CSVLoaded                   bool              `json:"csv_loaded"`
	ShapefileLoaded             bool              `json:"shapefile_loaded"`
	RiskWorkflowActive          bool              `json:"risk_workflow_active"`
	TPRTransitionComplete       bool              `json:"tpr_transition_complete"`
	AnalysisComplete            bool              `json:"analysis_complete"`
	DownloadLinks               []json.RawMessage `json:"tpr_download_links,omitempty"`
}

// stateFromRaw builds a typed State from the raw flag map a backend holds.
// Unparsable bool values read as false rather than failing the snapshot; a
// stale or hand-edited flag should surface as "off", not break inspection.
func stateFromRaw(sessionID string, raw map[string]string, links []json.RawMessage) *State {
	return &State{
		SessionID:                   sessionID,
		TPRWorkflowActive:           parseBool(raw[FlagTPRWorkflowActive]),
		TPRSessionID:                raw[FlagTPRSessionID],
		ShouldAskAnalysisPermission: parseBool(raw[FlagShouldAskAnalysisPermission]),
		DataLoaded:                  parseBool(raw[FlagDataLoaded]),
		CSVLoaded:                   parseBool(raw[FlagCSVLoaded]),
		ShapefileLoaded:             parseBool(raw[FlagShapefileLoaded]),
		RiskWorkflowActive:          parseBool(raw[FlagRiskWorkflowActive]),
		TPRTransitionComplete:       parseBool(raw[FlagTPRTransitionComplete]),
		AnalysisComplete:            parseBool(raw[FlagAnalysisComplete]),
		DownloadLinks:               links,
	}
}

// parseBool interprets the stored string form of a bool flag. Accepts the
// strconv forms ("true", "1", "T", ...); anything else is false.
func parseBool(s string) bool {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return v
}

// validateFlag checks a flag name against the registry and rejects the
// reserved internal field names outright.
func validateFlag(flag string) error {
	switch flag {
	case fieldPermanent, fieldSchema, fieldLinks:
		return fmt.Errorf("%w: %q is reserved", ErrUnknownFlag, flag)
	}
	if _, ok := KnownFlags[flag]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFlag, flag)
	}
	return nil
}

// validateSessionID rejects identifiers that are empty or could escape the
// record namespace (the file backend uses the id as a file name).
func validateSessionID(sid string) error {
	if sid == "" {
		return ErrBadSessionID
	}
	for _, r := range sid {
		switch r {
		case '/', '\\', 0:
			return fmt.Errorf("%w: %q", ErrBadSessionID, sid)
		}
	}
	if sid == "." || sid == ".." {
		return fmt.Errorf("%w: %q", ErrBadSessionID, sid)
	}
	return nil
}
