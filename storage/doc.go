// Package storage keeps trust material on the local filesystem.
//
// FileStore manages a directory holding the CA certificate and a series of
// client key generations. Each generation carries a private key, its public
// key, the signed certificate and the certificate-plus-CA bundle:
//
//	/tmp/inaeticstrustmanager/
//	    ca.pem
//	    manifest.json
//	    gen-000007/client_priv.key
//	    gen-000007/client_pub.key
//	    gen-000007/client.pem
//	    gen-000007/client_full.pem
//
// New material is written to a pending generation (see NextPath) and only
// becomes visible through MostRecent once Commit updates the manifest. A failed
// rekey calls Abort and leaves the previous generation current. Prune keeps
// the newest generations up to the retention count.
//
// Every write holds an exclusive advisory lock on the target file, so
// concurrent readers in other processes that honour flock never see a torn
// artifact.
package storage
