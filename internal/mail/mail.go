// Package mail retrieves short-lived sign-in codes from the shared
// mailbox the streaming service delivers them to.
package mail

import "context"

// CodeFetcher searches recent messages for a verification code.
// An empty code with a nil error means no matching message exists yet;
// that is a normal outcome, not a fault.
type CodeFetcher interface {
	FetchCode(ctx context.Context, mailbox string) (string, error)
}
