package trustmanager

// State is a step of the trust worker cycle.
type State int32

const (
	StateIdle State = iota
	StateLoadCACert
	StateLoadClientCert
	StateVerify
	StateRekey
	StateSleep
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoadCACert:
		return "load-ca-cert"
	case StateLoadClientCert:
		return "load-client-cert"
	case StateVerify:
		return "verify"
	case StateRekey:
		return "rekey"
	case StateSleep:
		return "sleep"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
