// Package flow contains the publish and read orchestrators. Each one
// runs a fixed sequence of steps across the ledger, the blob store and
// the capability service; failures carry the step they happened in, and
// the read flow can be suspended and resumed around capability approval.
package flow

import "fmt"

// Step identifies a stage of a publish or read flow.
type Step string

const (
	StepKeyGen        Step = "keygen"
	StepAssets        Step = "assets"
	StepSerialize     Step = "serialize"
	StepUpload        Step = "upload"
	StepWrapKey       Step = "wrapkey"
	StepLedger        Step = "ledger"
	StepFetchPost     Step = "fetchpost"
	StepAccess        Step = "access"
	StepGrant         Step = "grant"
	StepUnwrapRequest Step = "unwraprequest"
	StepAwait         Step = "await"
	StepDownload      Step = "download"
	StepDecrypt       Step = "decrypt"
)

// StepError wraps a failure with the flow step it occurred in.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("flow step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepErr(step Step, err error) error {
	return &StepError{Step: step, Err: err}
}
