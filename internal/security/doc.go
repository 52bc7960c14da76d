// Package security generates database credentials.
//
// Usernames and roles follow a fixed format so they can be recognised and
// traced back to the identifier they were issued for:
//
//	username: <credentialPrefix><identifier>-<uuid>   or <credentialPrefix><uuid>
//	role:     <rolePrefix><identifier>                 or <rolePrefix><uuid>
//	api key:  key_<32 hex chars>
//
// Passwords are drawn from crypto/rand. No registry of issued credentials is
// kept; uniqueness comes from the 122 random bits of a v4 UUID.
package security
