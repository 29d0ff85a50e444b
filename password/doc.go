// Package password hashes and verifies user passwords.
//
// New digests use argon2id in PHC format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// bcrypt digests ($2a$, $2b$, $2y$) remain verifiable so accounts imported
// from older systems keep working; Hasher.NeedsUpgrade flags them for rehash.
// Every computation goes through a Pool that caps concurrent hashing.
//
// Plaintext passwords are never logged or stored by this package.
package password
