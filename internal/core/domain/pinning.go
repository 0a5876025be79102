package domain

// PrimaryReplicaName names the primary store in pin reports.
const PrimaryReplicaName = "primary"

// PinStatus lists the content a store or replica retains.
type PinStatus struct {
	Replica string
	CIDs    []string

	// Err is set when the listing failed.
	Err error
}
