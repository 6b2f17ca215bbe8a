// Package coordinator keeps one AirCloud account's device snapshot fresh.
//
// A Coordinator polls the account on a fixed interval and on demand. Each
// fetch cycle lists the family groups, fetches every group's indoor units,
// normalizes them and, on success, replaces the snapshot whole. Listeners
// registered with Subscribe are told about every published change.
//
// Cycle outcomes:
//
//	success           snapshot replaced, listeners notified if it changed
//	auth_failed       snapshot kept, refresh suspended until Reauthenticate
//	transient_failed  snapshot kept, next scheduled cycle retries
//
// Control commands do not go through the cycle. After a successful command
// the caller patches the affected device with Patch and requests a refresh;
// after a failed one it calls MarkUnavailable.
package coordinator
