// Package escrow implements the milestone escrow state machine.
//
// A client creates a project of priced objectives for a freelancer. Funding an
// objective escrows half its price; completing it collects the remainder from
// the client and pays the full price to the freelancer. A client may cancel an
// active project and then reclaim the deposits of objectives that were funded
// but never completed.
//
// Every operation runs under a per-project lock, loads the project from the
// Store, checks the caller's role by comparing identities, moves funds through
// the Token capability and only then persists the new state. Foreign
// collaborators (store, token, notifier, locker) are plain interfaces.
package escrow
