// Package mastodon provides the Mastodon provider: the access-token credential
// descriptor, the markers resource contract and a small client that runs the
// credential check and marker calls through core.Service.
package mastodon
