// Package session owns the link-level pieces shared by served nodes and
// remote callers:
//
//   - registration control messages (node.register / node.register.ack)
//   - query, reply and error frame codecs
//   - timeouts, retry backoff and TLS policy
package session
