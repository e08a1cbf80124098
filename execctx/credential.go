package execctx

// Credential is an immutable named byte blob published to a service
// (id, bytes pair in the data model). Encrypted credentials are
// base64-decoded and passed through a Decryptor (see package credstore)
// before this value is constructed.
type Credential struct {
	ID    string
	Bytes []byte
}

// Size returns the credential's byte length, used against
// CREDENTIAL_SIZE_MAX / CREDENTIALS_TOTAL_SIZE_MAX caps.
func (c Credential) Size() int {
	return len(c.Bytes)
}
