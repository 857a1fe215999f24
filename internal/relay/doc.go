// Package relay holds the core of the bot relay: the upstream-owned Bot and
// Category types, the Registration records this service owns, the error
// taxonomy shared by every layer, and the Service that orchestrates upstream
// listings against the correlation store.
//
// Flow for a single call:
//   - the API layer decodes the inbound request and calls one Service method;
//   - required inputs are validated before anything touches the network;
//   - the Upstream (a retrying fetcher behind it) returns a fresh listing;
//   - the listing is filtered or cross-referenced, and RegisterBot writes one
//     Registration into the RegistrationStore.
//
// Nothing is cached between calls. Allowed categories and the public bot
// prefix are fixed at construction time.
package relay
