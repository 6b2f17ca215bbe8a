// Package auth issues and checks the bearer tokens that guard the REST API.
//
// Tokens are HS256 JWTs signed with api.auth.jwt_secret. Each carries one
// role and the role decides what the caller may do:
//
//	viewer    read units, history, command log and status
//	operator  viewer, plus control intents and manual refresh
//	admin     operator, plus replacing the AirCloud account credentials
//
// Tokens are minted offline with "aircloudd token" and are validated by
// signature and expiry only. There are no user accounts or sessions.
package auth
