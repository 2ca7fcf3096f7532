package domain

// PairedClient is the identity record created on successful pairing.
// It is owned exclusively by the config store and is immutable once
// created; unpairing removes it, never mutates it in place.
type PairedClient struct {
	ID         ClientID
	ClientCert string // PEM
	Name       string
}
