package auth

// Admission resolves the upload size ceiling for a create-secret
// request: the presented token's own limit, or the process-wide
// anonymous ceiling when no token is presented.
type Admission struct {
	AnonymousSizeLimit int64
}

// ResolveLimit picks the effective size limit. token is nil for an
// anonymous request.
func (a Admission) ResolveLimit(token *TokenRecord) int64 {
	if token != nil && token.UploadSizeLimit > 0 {
		return token.UploadSizeLimit
	}
	return a.AnonymousSizeLimit
}
