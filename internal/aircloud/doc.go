// Package aircloud is a client for the AirCloud Home cloud API used by
// Hitachi residential air conditioners.
//
// One Client serves one account. It signs in with email and password,
// holds the resulting bearer session, and exposes the four calls the
// bridge needs:
//
//	POST /iam/auth/sign-in                                   SignIn
//	GET  /iam/family-account/v2/groups                       FamilyGroups
//	GET  /rac/ownership/groups/{familyId}/idu-list           Devices
//	PUT  /rac/basic-idu-control/general-control-command/{id} ControlDevice
//
// Every failure is classified as ErrAuthentication, ErrCommunication or
// ErrGeneral. Callers decide whether to retry; the client never does.
//
// Usage:
//
//	client := aircloud.NewClient(aircloud.Credentials{Email: e, Password: p})
//	groups, err := client.FamilyGroups(ctx)
//	if aircloud.IsAuthentication(err) {
//	    // ask the user for new credentials
//	}
package aircloud
