// Package conn holds connection plumbing shared by socksify's listeners:
// keepalive-applying TCP listeners and bidirectional stream copying.
package conn
