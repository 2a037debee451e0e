// Package core contains the credential, transport, and request runtime
// contracts shared by Mastodon providers. Lower-level adapters depend on this
// package; core must not depend on provider-specific or transport-specific
// adapters.
package core
